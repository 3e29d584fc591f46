package coordinator

import "strings"

// Hold names, as they appear in logs, events and status output.
const (
	HoldMemory     = "memory"
	HoldPopulation = "population"
	HoldManual     = "manual"
)

// Holds is the set of independent pause reasons. The workload is paused
// exactly when at least one is set.
type Holds struct {
	Memory     bool
	Population bool
	Manual     bool
}

// Any reports whether the workload must be paused.
func (h Holds) Any() bool {
	return h.Memory || h.Population || h.Manual
}

// Active returns the names of the set holds in a fixed order.
func (h Holds) Active() []string {
	var out []string
	if h.Memory {
		out = append(out, HoldMemory)
	}
	if h.Population {
		out = append(out, HoldPopulation)
	}
	if h.Manual {
		out = append(out, HoldManual)
	}
	return out
}

// String renders the active holds joined by "+", or "none".
func (h Holds) String() string {
	active := h.Active()
	if len(active) == 0 {
		return "none"
	}
	return strings.Join(active, "+")
}
