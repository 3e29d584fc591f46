package console

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/genpause/internal/styles"
)

// RefreshInterval is how often the dashboard re-renders the status panel.
const RefreshInterval = time.Second

// maxEvents is the number of recent event lines the dashboard keeps.
const maxEvents = 8

// maxHistory bounds the command history.
const maxHistory = 100

type tickMsg time.Time

type statusMsg string

type resultMsg struct {
	line   string
	result Result
}

type feedMsg struct {
	line string
	ok   bool
}

// Dashboard is the bubbletea model for the interactive console.
type Dashboard struct {
	exec  ExecFunc
	feed  *Feed
	input textinput.Model

	status  string
	output  string
	errMsg  string
	events  []string
	history []string
	histIdx int
	busy    bool

	width    int
	height   int
	quitting bool
}

// NewDashboard creates a dashboard model. feed may be nil.
func NewDashboard(exec ExecFunc, feed *Feed) Dashboard {
	ti := textinput.New()
	ti.Prompt = styles.Prompt.Render("> ")
	ti.Placeholder = "status, gc, forcepause, monitor on|off, <number>, help"
	ti.CharLimit = 120
	ti.Width = 60
	ti.Focus()

	return Dashboard{exec: exec, feed: feed, input: ti}
}

// Init starts the refresh ticker and the event listener.
func (m Dashboard) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.refresh(), tick()}
	if m.feed != nil {
		cmds = append(cmds, listen(m.feed))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func listen(feed *Feed) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-feed.C()
		return feedMsg{line: line, ok: ok}
	}
}

func (m Dashboard) refresh() tea.Cmd {
	exec := m.exec
	return func() tea.Msg {
		return statusMsg(exec("status").Output)
	}
}

func (m Dashboard) run(line string) tea.Cmd {
	exec := m.exec
	return func() tea.Msg {
		return resultMsg{line: line, result: exec(line)}
	}
}

// Update handles messages and key presses.
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-8, 20)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case feedMsg:
		if !msg.ok {
			return m, nil
		}
		m.events = append(m.events, msg.line)
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		if m.feed == nil {
			return m, nil
		}
		return m, listen(m.feed)

	case resultMsg:
		m.busy = false
		m.output = msg.result.Output
		m.errMsg = ErrorText(msg.result.Err)
		if msg.result.Quit {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		if m.busy {
			return m, nil
		}
		line := strings.TrimSpace(m.input.Value())
		m.input.SetValue("")
		if line != "" {
			m.history = append(m.history, line)
			if len(m.history) > maxHistory {
				m.history = m.history[1:]
			}
		}
		m.histIdx = len(m.history)
		m.busy = true
		return m, m.run(line)

	case "up":
		if m.histIdx > 0 {
			m.histIdx--
			m.input.SetValue(m.history[m.histIdx])
			m.input.CursorEnd()
		}
		return m, nil

	case "down":
		if m.histIdx < len(m.history)-1 {
			m.histIdx++
			m.input.SetValue(m.history[m.histIdx])
			m.input.CursorEnd()
		} else {
			m.histIdx = len(m.history)
			m.input.SetValue("")
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the status panel, recent events, the last result and the
// prompt.
func (m Dashboard) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	status := m.status
	if status == "" {
		status = styles.Muted.Render("Loading...")
	}
	panel := styles.Panel
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	b.WriteString(panel.Render(status))
	b.WriteString("\n")

	if len(m.events) > 0 {
		b.WriteString(styles.Title.Render("Recent events"))
		for _, e := range m.events {
			b.WriteString("\n  ")
			b.WriteString(styles.Muted.Render(e))
		}
		b.WriteString("\n")
	}

	if m.output != "" {
		b.WriteString("\n")
		b.WriteString(m.output)
		b.WriteString("\n")
	}
	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.errMsg)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(styles.HelpBar.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.HelpKey.Render("enter"), " run  ",
		styles.HelpKey.Render("up/down"), " history  ",
		styles.HelpKey.Render("esc"), " quit")))
	return b.String()
}

// RunDashboard runs the dashboard in the alternate screen until the user
// quits or ctx is done.
func RunDashboard(ctx context.Context, exec ExecFunc, feed *Feed) error {
	p := tea.NewProgram(NewDashboard(exec, feed), tea.WithAltScreen())

	stop := context.AfterFunc(ctx, func() { p.Send(tea.Quit()) })
	defer stop()

	_, err := p.Run()
	return err
}
