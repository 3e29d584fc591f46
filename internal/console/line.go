package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Iron-Ham/genpause/internal/styles"
)

// LineReader is the part of *readline.Instance the line console uses.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// LineOptions configure the line console.
type LineOptions struct {
	Prompt      string
	HistoryFile string
	Stdin       io.ReadCloser
	Stdout      io.Writer
	// Feed, when set, prints bus events between commands.
	Feed *Feed
}

// Completer returns tab completion for the command words.
func Completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(Commands())+5)
	for _, cmd := range Commands() {
		if cmd == "monitor" {
			items = append(items, readline.PcItem(cmd, readline.PcItem("on"), readline.PcItem("off")))
			continue
		}
		items = append(items, readline.PcItem(cmd))
	}
	for _, n := range []string{"0", "1", "2", "5", "10"} {
		items = append(items, readline.PcItem(n))
	}
	return readline.NewPrefixCompleter(items...)
}

// RunLine runs the readline console until quit, EOF, interrupt or ctx is
// done.
func RunLine(ctx context.Context, exec ExecFunc, opts LineOptions) error {
	if opts.Prompt == "" {
		opts.Prompt = "genpause> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          styles.Prompt.Render(opts.Prompt),
		HistoryFile:     opts.HistoryFile,
		AutoComplete:    Completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdin:           opts.Stdin,
		Stdout:          opts.Stdout,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	out := opts.Stdout
	if out == nil {
		out = rl.Stdout()
	}
	return ServeLines(ctx, rl, out, exec, opts.Feed)
}

// ServeLines reads commands from r and writes results to w. It closes r when
// it returns.
func ServeLines(ctx context.Context, r LineReader, w io.Writer, exec ExecFunc, feed *Feed) error {
	defer func() { _ = r.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()

	for {
		line, err := r.Readline()
		drain(w, feed)
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		res := exec(strings.TrimSpace(line))
		if res.Output != "" {
			fmt.Fprintln(w, res.Output)
		}
		if res.Err != nil {
			fmt.Fprintln(w, ErrorText(res.Err))
		}
		if res.Quit {
			return nil
		}
	}
}

func drain(w io.Writer, feed *Feed) {
	if feed == nil {
		return
	}
	for {
		select {
		case line, ok := <-feed.C():
			if !ok {
				return
			}
			fmt.Fprintln(w, styles.Muted.Render(line))
		default:
			return
		}
	}
}
