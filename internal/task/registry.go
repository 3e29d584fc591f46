package task

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Gate is a pause point for one workload. The workload calls Wait between
// units of work; Wait blocks while the gate is paused.
type Gate struct {
	id string

	mu       sync.Mutex
	paused   bool
	open     chan struct{} // closed while running
	pausedAt time.Time
	pauses   int
}

func newGate(id string) *Gate {
	open := make(chan struct{})
	close(open)
	return &Gate{id: id, open: open}
}

// ID returns the resource id.
func (g *Gate) ID() string { return g.id }

// Paused reports whether the gate is currently closed.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns immediately while running. While paused it blocks until the
// gate reopens or ctx is done, returning ctx.Err() in the latter case.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		paused, open := g.paused, g.open
		g.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-open:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *Gate) pause(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	g.open = make(chan struct{})
	g.pausedAt = now
	g.pauses++
	return true
}

func (g *Gate) resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	close(g.open)
	g.pausedAt = time.Time{}
	return true
}

// GateStatus is a point-in-time view of a gate.
type GateStatus struct {
	ID       string
	Managed  bool
	Paused   bool
	PausedAt time.Time
	Pauses   int
}

func (g *Gate) status() GateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateStatus{ID: g.id, Paused: g.paused, PausedAt: g.pausedAt, Pauses: g.pauses}
}

// Registry is an in-process Controller over registered gates. Ids rejected
// by the filter can be registered but are never left paused by the registry:
// a gate that falls out of management is reopened, and one that enters it
// while the workload is held is closed.
type Registry struct {
	mu     sync.RWMutex
	gates  map[string]*Gate
	filter *Filter
	held   bool
	now    func() time.Time
}

// FilterChange lists the gates a filter swap moved in or out of management
// that changed state as a result.
type FilterChange struct {
	Released []string // left management and were reopened
	Held     []string // entered management while held and were closed
}

// NewRegistry creates a registry managing ids accepted by filter. A nil
// filter manages everything.
func NewRegistry(filter *Filter) *Registry {
	if filter == nil {
		filter = MatchAll()
	}
	return &Registry{
		gates:  make(map[string]*Gate),
		filter: filter,
		now:    time.Now,
	}
}

// Register returns the gate for id, creating one if needed. A new managed
// gate starts paused while the workload is held.
func (r *Registry) Register(id string) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gates[id]; ok {
		return g
	}
	g := newGate(id)
	if r.held && r.filter.Match(id) {
		g.pause(r.now())
	}
	r.gates[id] = g
	return g
}

// Unregister removes id. A paused gate is reopened so its workload is not
// left blocked.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	g, ok := r.gates[id]
	delete(r.gates, id)
	r.mu.Unlock()
	if ok {
		g.resume()
	}
}

// Gate looks up a registered gate.
func (r *Registry) Gate(id string) (*Gate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[id]
	return g, ok
}

// SetFilter replaces the managed-resource filter. Gates that fall out of
// management are reopened; gates that enter it are closed when the workload
// is held.
func (r *Registry) SetFilter(f *Filter) FilterChange {
	if f == nil {
		f = MatchAll()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var change FilterChange
	for id, g := range r.gates {
		was, now := r.filter.Match(id), f.Match(id)
		switch {
		case was && !now:
			if g.resume() {
				change.Released = append(change.Released, id)
			}
		case !was && now && r.held:
			if g.pause(r.now()) {
				change.Held = append(change.Held, id)
			}
		}
	}
	r.filter = f
	sort.Strings(change.Released)
	sort.Strings(change.Held)
	return change
}

// Hold records the workload-wide pause state.
func (r *Registry) Hold(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = paused
}

// Held reports the last state passed to Hold.
func (r *Registry) Held() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.held
}

// Resources returns the managed ids in sorted order.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.gates))
	for id := range r.gates {
		if r.filter.Match(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) managed(id string) (*Gate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[id]
	if !ok || !r.filter.Match(id) {
		return nil, false
	}
	return g, true
}

// Pause closes the gate for id.
func (r *Registry) Pause(id string) Outcome {
	g, ok := r.managed(id)
	if !ok || !g.pause(r.now()) {
		return NoOp
	}
	return Applied
}

// Resume reopens the gate for id.
func (r *Registry) Resume(id string) Outcome {
	g, ok := r.managed(id)
	if !ok || !g.resume() {
		return NoOp
	}
	return Applied
}

// Status returns every registered gate, managed or not, sorted by id.
func (r *Registry) Status() []GateStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GateStatus, 0, len(r.gates))
	for id, g := range r.gates {
		s := g.status()
		s.Managed = r.filter.Match(id)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
