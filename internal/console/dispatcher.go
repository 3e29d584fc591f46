// Package console is the operator command surface. A Dispatcher parses one
// command line at a time against the coordinator's public state; the
// dashboard and line front ends only render its results.
package console

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/genpause/internal/config"
	"github.com/Iron-Ham/genpause/internal/coordinator"
	"github.com/Iron-Ham/genpause/internal/errors"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/population"
	"github.com/Iron-Ham/genpause/internal/reclaim"
	"github.com/Iron-Ham/genpause/internal/styles"
)

// ReasonManual is the reclamation reason for the gc command.
const ReasonManual = "manual command"

// Coordinator is the coordinator surface the console reads and drives.
type Coordinator interface {
	Status() coordinator.Status
	SetManualHold(on bool) bool
	UpdateThresholds(t config.Thresholds)
}

// Reclaimer is the reclamation surface the console reads and drives.
type Reclaimer interface {
	Force(reason string) bool
	Last() (reclaim.Attempt, bool)
	CooldownRemaining() time.Duration
	Profile() memory.Profile
	Plan() reclaim.Plan
}

// Monitor is the monitor loop surface.
type Monitor interface {
	SetEnabled(on bool) bool
	Enabled() bool
}

// Settings persists and reloads configuration. *config.Store implements it.
type Settings interface {
	Set(key string, value any) error
	Reload() (*config.Config, error)
	Config() *config.Config
}

// Roster manages simulated users. *population.Roster implements it.
type Roster interface {
	population.Source
	Join(name string) bool
	Leave(name string) bool
	Members() []string
}

// Deps are the collaborators a Dispatcher works with. Roster and Apply are
// optional.
type Deps struct {
	Coordinator Coordinator
	Reclaimer   Reclaimer
	Monitor     Monitor
	Settings    Settings
	Sampler     memory.Sampler
	Population  population.Source
	Roster      Roster
	// Apply pushes a reloaded configuration into the running components.
	Apply  func(*config.Config)
	Logger *logging.Logger
}

// Result is the outcome of one command line.
type Result struct {
	Output string
	Err    error
	Quit   bool
}

// Dispatcher executes operator commands. It is not safe for concurrent use;
// front ends serialise calls onto the scheduler goroutine.
type Dispatcher struct {
	deps   Deps
	logger *logging.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	if deps.Population == nil && deps.Roster != nil {
		deps.Population = deps.Roster
	}
	return &Dispatcher{deps: deps, logger: logger.WithComponent("console")}
}

// Commands lists the command words, for completion.
func Commands() []string {
	return []string{"status", "reload", "gc", "forcepause", "monitor", "join", "leave", "who", "help", "quit"}
}

// Execute runs one command line. An empty line shows the status.
func (d *Dispatcher) Execute(line string) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return d.status()
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	d.logger.Debug("command", "command", cmd, "args", strings.Join(args, " "))

	var res Result
	switch cmd {
	case "status":
		res = d.status()
	case "help", "?":
		res = Result{Output: Help()}
	case "reload":
		res = d.reload()
	case "gc":
		res = d.gc()
	case "forcepause":
		res = d.forcePause()
	case "monitor":
		res = d.monitor(args)
	case "join", "leave":
		res = d.membership(cmd, args)
	case "who":
		res = d.who()
	case "quit", "exit":
		res = Result{Quit: true}
	default:
		res = d.setMaxUsers(cmd)
	}
	if res.Err != nil {
		d.logFailure(cmd, res.Err)
	}
	return res
}

// logFailure logs rejected input at info and anything unexpected at error.
func (d *Dispatcher) logFailure(cmd string, err error) {
	sev := errors.GetSeverity(err)
	attrs := []any{"command", cmd, "severity", sev.String(), "error", err.Error()}
	if sev >= errors.SeverityError {
		d.logger.Error("command failed", attrs...)
		return
	}
	d.logger.Info("command rejected", attrs...)
}

// ErrorText renders a command error for the operator. Messages phrased for
// the operator are shown as they are, coloured by severity; anything else is
// marked internal and points at the log.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	if !errors.IsUserFacing(err) {
		return styles.ErrorMsg.Render("Internal error: " + err.Error() + " (see genpause logs)")
	}
	if errors.GetSeverity(err) >= errors.SeverityError {
		return styles.ErrorMsg.Render("Error: " + err.Error())
	}
	return styles.Warning.Render("Error: " + err.Error())
}

// Help renders the command reference.
func Help() string {
	entries := [][2]string{
		{"status", "Show pause state, memory and users"},
		{"<number>", "Set max users (0 or greater)"},
		{"reload", "Reload configuration from disk"},
		{"gc", "Force a memory reclamation, ignoring the cooldown"},
		{"forcepause", "Toggle the manual pause"},
		{"monitor on|off", "Enable or disable memory monitoring"},
		{"join <name>", "Add a simulated user"},
		{"leave <name>", "Remove a simulated user"},
		{"who", "List simulated users"},
		{"quit", "Leave the console"},
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render("Commands"))
	for _, e := range entries {
		b.WriteString("\n  ")
		b.WriteString(styles.HelpKey.Width(16).Render(e[0]))
		b.WriteString(styles.Muted.Render(e[1]))
	}
	return b.String()
}

func (d *Dispatcher) users() int {
	if d.deps.Population == nil {
		return 0
	}
	return d.deps.Population.Count()
}

func (d *Dispatcher) sample() (memory.Snapshot, bool) {
	if d.deps.Sampler == nil {
		return memory.Snapshot{}, false
	}
	return d.deps.Sampler.Sample(), true
}

func (d *Dispatcher) status() Result {
	st := d.deps.Coordinator.Status()
	th := st.Thresholds
	users := d.users()

	var b strings.Builder
	line := func(label, value string) {
		b.WriteString("\n")
		b.WriteString(styles.Row(label, value))
	}

	b.WriteString(styles.Title.Render("genpause status"))
	line("State", styles.StateBadge(st.Paused))
	line("Holds", styles.Holds(st.Holds.Active()))

	if th.PopulationLimited() {
		line("Max users", strconv.Itoa(th.MaxUsers))
		line("Users", fmt.Sprintf("%d %s", users, styles.Limit(users > th.MaxUsers)))
	} else {
		line("Max users", styles.Muted.Render("unlimited"))
		line("Users", strconv.Itoa(users))
	}

	if s, ok := d.sample(); ok {
		b.WriteString("\n")
		line("Memory", styles.Gauge(s.Ratio(), th.MemoryThreshold, 20)+" "+styles.Ratio(s.Ratio(), th.MemoryThreshold))
		line("Used", fmt.Sprintf("%s / %s", memory.Bytes(s.UsedBytes).Humanized(), memory.Bytes(s.MaxBytes).Humanized()))
		line("Allocated", memory.Bytes(s.AllocatedBytes).Humanized())
		line("Threshold", fmt.Sprintf("%.1f%% (resume below %.1f%%)", th.MemoryThreshold*100, th.RecoverBelow()*100))
	}

	if r := d.deps.Reclaimer; r != nil {
		b.WriteString("\n")
		line("Runtime", r.Profile().String())
		line("Strategy", r.Plan().String())
		if rem := r.CooldownRemaining(); rem > 0 {
			line("Cooldown", rem.Round(100*time.Millisecond).String())
		} else {
			line("Cooldown", styles.Secondary.Render("ready"))
		}
		if a, ok := r.Last(); ok {
			line("Last reclaim", fmt.Sprintf("%s, freed %s used, %s allocated",
				a.Reason, signedMiB(a.FreedUsed), signedMiB(a.FreedAllocated)))
		}
	}

	b.WriteString("\n")
	if st.Recovering {
		line("Recovery", fmt.Sprintf("attempt %d/%d", st.RecoveryAttempt, th.RecoveryAttempts))
	}
	if d.deps.Monitor != nil {
		line("Monitoring", onOff(d.deps.Monitor.Enabled()))
	}
	line("Clean on join", onOff(th.CleanOnJoin))
	line("Transitions", fmt.Sprintf("%d pause, %d resume", st.Pauses, st.Resumes))

	return Result{Output: b.String()}
}

func (d *Dispatcher) reload() Result {
	cfg, err := d.deps.Settings.Reload()
	if err != nil {
		return Result{Err: errors.NewCommandError("reload", err).WithMessage("configuration not applied")}
	}
	if d.deps.Apply != nil {
		d.deps.Apply(cfg)
	} else {
		d.deps.Coordinator.UpdateThresholds(cfg.Thresholds())
	}
	return Result{Output: styles.Secondary.Render("Configuration reloaded.") + "\n" +
		styles.Row("Max users", strconv.Itoa(cfg.MaxPlayers))}
}

func (d *Dispatcher) gc() Result {
	if d.deps.Reclaimer == nil {
		return Result{Err: errors.NewCommandError("gc", errors.ErrInvalidInput).WithMessage("no reclaimer attached")}
	}
	if !d.deps.Reclaimer.Force(ReasonManual) {
		return Result{Output: styles.Warning.Render("Reclamation did not start.")}
	}
	return Result{Output: styles.Warning.Render("Forcing memory reclamation...")}
}

func (d *Dispatcher) forcePause() Result {
	on := !d.deps.Coordinator.Status().Holds.Manual
	if err := d.deps.Settings.Set(config.KeyForcePaused, on); err != nil {
		return Result{Err: errors.NewCommandError("forcepause", err).WithMessage("could not persist force-paused")}
	}
	d.deps.Coordinator.SetManualHold(on)

	if on {
		return Result{Output: strings.Join([]string{
			styles.Secondary.Render("Workload is now force paused. It will not resume automatically."),
			styles.Muted.Render("Run forcepause again to allow automatic resuming."),
			styles.Muted.Render("This state persists across restarts."),
		}, "\n")}
	}

	st := d.deps.Coordinator.Status()
	lines := []string{styles.Secondary.Render("Force pause disabled. The workload can resume automatically.")}
	if !st.Paused {
		lines = append(lines, styles.Secondary.Render("Conditions met, workload resumed."))
		return Result{Output: strings.Join(lines, "\n")}
	}
	lines = append(lines, styles.Muted.Render("The workload will resume when conditions are met:"))
	if st.Holds.Population {
		lines = append(lines, fmt.Sprintf("  - users: %d/%d %s", d.users(), st.Thresholds.MaxUsers, styles.Error.Render("(too many)")))
	}
	if st.Holds.Memory {
		usage := ""
		if s, ok := d.sample(); ok {
			usage = fmt.Sprintf(" %.1f%%", s.Ratio()*100)
		}
		lines = append(lines, fmt.Sprintf("  - memory:%s %s", usage, styles.Error.Render("(too high)")))
	}
	return Result{Output: strings.Join(lines, "\n")}
}

func (d *Dispatcher) monitor(args []string) Result {
	if d.deps.Monitor == nil {
		return Result{Err: errors.NewCommandError("monitor", errors.ErrInvalidInput).WithMessage("no monitor attached")}
	}
	if len(args) == 0 {
		return Result{Output: styles.Row("Monitoring", onOff(d.deps.Monitor.Enabled()))}
	}

	var on bool
	switch strings.ToLower(args[0]) {
	case "on", "true", "enable":
		on = true
	case "off", "false", "disable":
		on = false
	default:
		return Result{Err: errors.NewCommandError("monitor", errors.ErrInvalidInput).WithArgs(args...).WithMessage("expected on or off")}
	}

	if err := d.deps.Settings.Set(config.KeyMonitoring, on); err != nil {
		return Result{Err: errors.NewCommandError("monitor", err).WithArgs(args...)}
	}
	d.deps.Monitor.SetEnabled(on)
	return Result{Output: styles.Row("Monitoring", onOff(on))}
}

func (d *Dispatcher) membership(cmd string, args []string) Result {
	if d.deps.Roster == nil {
		return Result{Err: errors.NewCommandError(cmd, errors.ErrNoRoster)}
	}
	if len(args) == 0 {
		return Result{Err: errors.NewCommandError(cmd, errors.ErrMissingArgument).WithMessage("usage: " + cmd + " <name>")}
	}
	name := strings.Join(args, " ")

	var changed bool
	if cmd == "join" {
		changed = d.deps.Roster.Join(name)
	} else {
		changed = d.deps.Roster.Leave(name)
	}
	if !changed {
		return Result{Output: styles.Muted.Render(fmt.Sprintf("No change for %q.", name))}
	}
	return Result{Output: fmt.Sprintf("%s %s (%d online)", name, pastTense(cmd), d.deps.Roster.Count())}
}

func (d *Dispatcher) who() Result {
	if d.deps.Roster == nil {
		return Result{Err: errors.NewCommandError("who", errors.ErrNoRoster)}
	}
	members := d.deps.Roster.Members()
	if len(members) == 0 {
		return Result{Output: styles.Muted.Render("No users online.")}
	}
	return Result{Output: fmt.Sprintf("%d online: %s", len(members), strings.Join(members, ", "))}
}

func (d *Dispatcher) setMaxUsers(arg string) Result {
	n, err := strconv.Atoi(arg)
	if err != nil {
		if looksNumeric(arg) {
			return Result{Err: errors.NewCommandError("max-users", errors.ErrNotANumber).WithArgs(arg)}
		}
		return Result{Err: errors.NewCommandError(arg, errors.ErrUnknownCommand).WithMessage("try help")}
	}
	if n < 0 {
		return Result{Err: errors.NewCommandError("max-users", errors.ErrNegativeUsers).WithArgs(arg)}
	}

	if err := d.deps.Settings.Set(config.KeyMaxPlayers, n); err != nil {
		return Result{Err: errors.NewCommandError("max-users", err).WithArgs(arg)}
	}
	th := d.deps.Coordinator.Status().Thresholds
	th.MaxUsers = n
	d.deps.Coordinator.UpdateThresholds(th)

	users := d.users()
	return Result{Output: styles.Secondary.Render(fmt.Sprintf("Max users changed to %d.", n)) + "\n" +
		styles.Row("Users", fmt.Sprintf("%d %s", users, styles.Limit(users > n)))}
}

// looksNumeric reports whether arg was meant as a number, so "12x" is a
// bad number rather than an unknown command.
func looksNumeric(arg string) bool {
	c := arg[0]
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9')
}

func onOff(on bool) string {
	if on {
		return styles.Secondary.Render("on")
	}
	return styles.Muted.Render("off")
}

func pastTense(cmd string) string {
	if cmd == "join" {
		return "joined"
	}
	return "left"
}

func signedMiB(b int64) string {
	if b < 0 {
		return "-" + memory.Bytes(-b).Humanized()
	}
	return memory.Bytes(b).Humanized()
}
