// Package reclaim picks and runs a memory-reclamation strategy suited to the
// runtime profile, guarded by a cooldown so bursts of triggers cannot turn
// into back-to-back forced collections.
package reclaim

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/genpause/internal/memory"
)

// ReleaseSettle is how long the release pass waits before measuring how much
// committed memory went back to the OS.
const ReleaseSettle = 500 * time.Millisecond

// Plan is the sequence of collection passes for one attempt.
type Plan struct {
	// Name is a short human-readable label for logs and gc-plan output.
	Name string
	// Passes is the number of forced collections.
	Passes int
	// Settle is the pause after each pass, or between passes when Between
	// is set.
	Settle time.Duration
	// Between limits settling to the gaps between passes.
	Between bool
	// Release adds a pass that returns freed memory to the OS. Only elastic
	// profiles get one.
	Release bool
}

// Waits returns the settle durations the plan sleeps for, in order,
// excluding the release settle.
func (p Plan) Waits() []time.Duration {
	var waits []time.Duration
	for i := 0; i < p.Passes; i++ {
		if p.Between && i == p.Passes-1 {
			break
		}
		waits = append(waits, p.Settle)
	}
	return waits
}

// Budget is the total time the plan spends settling.
func (p Plan) Budget() time.Duration {
	var total time.Duration
	for _, w := range p.Waits() {
		total += w
	}
	if p.Release {
		total += ReleaseSettle
	}
	return total
}

// String renders the plan on one line.
func (p Plan) String() string {
	mode := "after each"
	if p.Between {
		mode = "between"
	}
	release := ""
	if p.Release {
		release = " + release"
	}
	return fmt.Sprintf("%s: %d pass(es), %s settle %s%s", p.Name, p.Passes, p.Settle, mode, release)
}

// PlanFor maps a profile to its strategy. Fixed capacity takes precedence
// over the collector family; Unknown is treated as Standard.
func PlanFor(p memory.Profile) Plan {
	var plan Plan
	switch {
	case p.FixedCapacity:
		plan = Plan{Name: "fixed capacity, single full pass", Passes: 1, Settle: 200 * time.Millisecond}
	case p.Family == memory.LowPause:
		plan = Plan{Name: "low-pause, minimal intervention", Passes: 1, Settle: 100 * time.Millisecond}
	case p.Family == memory.RegionalGenerational:
		plan = Plan{Name: "regional, dual pass", Passes: 2, Settle: 250 * time.Millisecond, Between: true}
	default:
		plan = Plan{Name: "standard, multi-pass aggressive", Passes: 3, Settle: 200 * time.Millisecond}
	}
	plan.Release = !p.FixedCapacity
	return plan
}

// Table returns the plan for every family in both capacity modes, for
// display.
func Table() []TableRow {
	families := []memory.CollectorFamily{memory.LowPause, memory.RegionalGenerational, memory.Standard, memory.Unknown}
	rows := make([]TableRow, 0, len(families)*2)
	for _, fixed := range []bool{false, true} {
		for _, f := range families {
			profile := memory.Profile{Family: f, FixedCapacity: fixed}
			rows = append(rows, TableRow{Profile: profile, Plan: PlanFor(profile)})
		}
	}
	return rows
}

// TableRow pairs a profile with its plan.
type TableRow struct {
	Profile memory.Profile
	Plan    Plan
}
