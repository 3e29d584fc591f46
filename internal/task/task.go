// Package task is the pause/resume surface of the suspendable workload.
//
// The coordinator talks to a [Controller]; [Registry] is the in-process
// implementation, handing each workload a [Gate] it checks between units of
// work.
package task

// Outcome is the result of a single pause or resume request. Failures are
// not errors: a resource that is missing, already in the requested state or
// unable to act reports NoOp.
type Outcome int

const (
	// NoOp means the resource's state did not change.
	NoOp Outcome = iota
	// Applied means the resource transitioned.
	Applied
)

// String returns "applied" or "noop".
func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "noop"
}

// Controller pauses and resumes managed resources by id.
type Controller interface {
	// Resources lists the ids currently under management.
	Resources() []string
	// Pause asks the resource to stop at its next safe point.
	Pause(id string) Outcome
	// Resume asks a paused resource to continue.
	Resume(id string) Outcome
}

// Holder is implemented by controllers that follow the workload-wide pause
// state, so that resources entering management while the workload is paused
// are paused too. The coordinator calls Hold on every pause and resume edge,
// before the per-resource calls.
type Holder interface {
	Hold(paused bool)
}

// Tally counts outcomes across a batch of requests.
type Tally struct {
	Applied int
	NoOp    int
}

// Add records one outcome.
func (t *Tally) Add(o Outcome) {
	if o == Applied {
		t.Applied++
		return
	}
	t.NoOp++
}

// Total returns the number of recorded outcomes.
func (t Tally) Total() int { return t.Applied + t.NoOp }
