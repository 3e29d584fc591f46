package monitor

import (
	"sync"

	"github.com/Iron-Ham/genpause/internal/config"
	"github.com/Iron-Ham/genpause/internal/event"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/population"
	"github.com/Iron-Ham/genpause/internal/scheduler"
)

const (
	// JoinReclaimDelay is how long after a join the clean-on-join
	// reclamation runs.
	JoinReclaimDelay scheduler.Ticks = 20

	// LeaveRecheckDelay is how long after a departure the population is
	// re-evaluated.
	LeaveRecheckDelay scheduler.Ticks = 40

	// ReasonUserJoin is the reclamation reason for clean-on-join.
	ReasonUserJoin = "user join"
)

// PopulationHandler is the part of the coordinator the watcher drives.
type PopulationHandler interface {
	PopulationChanged(count int) bool
	Thresholds() config.Thresholds
}

// Reclaimer requests a reclamation.
type Reclaimer interface {
	Reclaim(reason string) bool
}

// PopulationWatcher reacts to join and leave events. Joins are evaluated
// at once; departures after LeaveRecheckDelay so the source has settled.
type PopulationWatcher struct {
	bus       *event.Bus
	source    population.Source
	handler   PopulationHandler
	reclaimer Reclaimer
	sched     scheduler.Scheduler
	logger    *logging.Logger

	mu      sync.Mutex
	subs    []string
	pending map[*scheduler.Task]struct{}
}

// NewPopulationWatcher creates a watcher. reclaimer may be nil, which
// disables clean-on-join.
func NewPopulationWatcher(bus *event.Bus, source population.Source, handler PopulationHandler, reclaimer Reclaimer, sched scheduler.Scheduler, logger *logging.Logger) *PopulationWatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &PopulationWatcher{
		bus:       bus,
		source:    source,
		handler:   handler,
		reclaimer: reclaimer,
		sched:     sched,
		logger:    logger.WithComponent("population"),
		pending:   make(map[*scheduler.Task]struct{}),
	}
}

// Start subscribes to population events and evaluates the current count
// once.
func (w *PopulationWatcher) Start() {
	w.mu.Lock()
	if len(w.subs) > 0 {
		w.mu.Unlock()
		return
	}
	w.subs = []string{
		w.bus.Subscribe(event.TypePopulationJoined, w.onJoin),
		w.bus.Subscribe(event.TypePopulationLeft, w.onLeave),
	}
	w.mu.Unlock()

	w.Check()
}

// Stop unsubscribes and cancels delayed work.
func (w *PopulationWatcher) Stop() {
	w.mu.Lock()
	subs := w.subs
	w.subs = nil
	for t := range w.pending {
		t.Cancel()
	}
	w.pending = make(map[*scheduler.Task]struct{})
	w.mu.Unlock()

	for _, id := range subs {
		w.bus.Unsubscribe(id)
	}
}

// Check re-samples the source and hands the count to the coordinator.
func (w *PopulationWatcher) Check() int {
	n := w.source.Count()
	w.handler.PopulationChanged(n)
	return n
}

func (w *PopulationWatcher) onJoin(e event.Event) {
	name := ""
	if j, ok := e.(event.PopulationJoinedEvent); ok {
		name = j.Name
	}
	n := w.Check()
	w.logger.Debug("user joined", "name", name, "users", n)

	if w.reclaimer != nil && w.handler.Thresholds().CleanOnJoin {
		w.later(JoinReclaimDelay, func() { w.reclaimer.Reclaim(ReasonUserJoin) })
	}
}

func (w *PopulationWatcher) onLeave(e event.Event) {
	if l, ok := e.(event.PopulationLeftEvent); ok {
		w.logger.Debug("user left", "name", l.Name)
	}
	w.later(LeaveRecheckDelay, func() { w.Check() })
}

func (w *PopulationWatcher) later(delay scheduler.Ticks, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.subs) == 0 {
		return
	}
	var t *scheduler.Task
	t = w.sched.RunLater(delay, func() {
		w.mu.Lock()
		_, live := w.pending[t]
		delete(w.pending, t)
		w.mu.Unlock()
		if live {
			fn()
		}
	})
	w.pending[t] = struct{}{}
}
