// Package population tracks the concurrent users whose number can hold the
// workload.
package population

import (
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/genpause/internal/event"
)

// Source reports the current number of concurrent users.
type Source interface {
	Count() int
}

// SourceFunc adapts a function to Source.
type SourceFunc func() int

// Count calls f.
func (f SourceFunc) Count() int { return f() }

// Roster is an in-memory Source. Joins and departures are published on the
// bus after the roster has been updated, so subscribers re-reading Count see
// the new value.
type Roster struct {
	mu      sync.RWMutex
	members map[string]struct{}
	bus     *event.Bus
}

// NewRoster creates an empty roster publishing to bus. bus may be nil.
func NewRoster(bus *event.Bus) *Roster {
	return &Roster{members: make(map[string]struct{}), bus: bus}
}

// Join adds name. It reports false, and publishes nothing, when name is
// blank or already present.
func (r *Roster) Join(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	r.mu.Lock()
	if _, ok := r.members[name]; ok {
		r.mu.Unlock()
		return false
	}
	r.members[name] = struct{}{}
	n := len(r.members)
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(event.NewPopulationJoinedEvent(name, n))
	}
	return true
}

// Leave removes name. It reports false when name was not present.
func (r *Roster) Leave(name string) bool {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	if _, ok := r.members[name]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.members, name)
	n := len(r.members)
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(event.NewPopulationLeftEvent(name, n))
	}
	return true
}

// Count returns the number of members.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns the member names in sorted order.
func (r *Roster) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
