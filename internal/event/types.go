package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns the "category.action" identifier, e.g. "pause.changed".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypePopulationJoined = "population.joined"
	TypePopulationLeft   = "population.left"
	TypePauseChanged     = "pause.changed"
	TypeHoldChanged      = "hold.changed"
	TypeReclaimCompleted = "reclaim.completed"
	TypeMemorySampled    = "memory.sampled"
	TypeConfigReloaded   = "config.reloaded"
)

// baseEvent is embedded in concrete events to satisfy Event.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Population Events
// -----------------------------------------------------------------------------

// PopulationJoinedEvent is emitted after a user has joined.
type PopulationJoinedEvent struct {
	baseEvent
	Name  string // Who joined
	Count int    // Population after the join
}

// NewPopulationJoinedEvent creates a PopulationJoinedEvent.
func NewPopulationJoinedEvent(name string, count int) PopulationJoinedEvent {
	return PopulationJoinedEvent{
		baseEvent: newBaseEvent(TypePopulationJoined),
		Name:      name,
		Count:     count,
	}
}

// PopulationLeftEvent is emitted after a user has left.
type PopulationLeftEvent struct {
	baseEvent
	Name  string
	Count int // Population after the departure
}

// NewPopulationLeftEvent creates a PopulationLeftEvent.
func NewPopulationLeftEvent(name string, count int) PopulationLeftEvent {
	return PopulationLeftEvent{
		baseEvent: newBaseEvent(TypePopulationLeft),
		Name:      name,
		Count:     count,
	}
}

// -----------------------------------------------------------------------------
// Coordination Events
// -----------------------------------------------------------------------------

// PauseChangedEvent is emitted when pause or resume was issued to the
// managed resources.
type PauseChangedEvent struct {
	baseEvent
	Paused  bool
	Reason  string   // Hold that caused the edge, e.g. "memory"
	Holds   []string // Holds active after the change
	Applied int      // Resources whose state changed
	NoOp    int      // Resources already in the target state or unavailable
}

// NewPauseChangedEvent creates a PauseChangedEvent.
func NewPauseChangedEvent(paused bool, reason string, holds []string, applied, noop int) PauseChangedEvent {
	return PauseChangedEvent{
		baseEvent: newBaseEvent(TypePauseChanged),
		Paused:    paused,
		Reason:    reason,
		Holds:     holds,
		Applied:   applied,
		NoOp:      noop,
	}
}

// HoldChangedEvent is emitted whenever a single hold is set or cleared,
// whether or not it caused a pause edge.
type HoldChangedEvent struct {
	baseEvent
	Hold   string
	Active bool
}

// NewHoldChangedEvent creates a HoldChangedEvent.
func NewHoldChangedEvent(hold string, active bool) HoldChangedEvent {
	return HoldChangedEvent{
		baseEvent: newBaseEvent(TypeHoldChanged),
		Hold:      hold,
		Active:    active,
	}
}

// -----------------------------------------------------------------------------
// Memory Events
// -----------------------------------------------------------------------------

// ReclaimCompletedEvent is emitted when a reclamation attempt has been
// measured and reported.
type ReclaimCompletedEvent struct {
	baseEvent
	AttemptID      string
	Reason         string
	Passes         int
	FreedUsed      int64 // Bytes, negative when usage grew
	FreedAllocated int64
	Released       int64 // Bytes returned to the OS by the release pass
	Note           string
}

// NewReclaimCompletedEvent creates a ReclaimCompletedEvent.
func NewReclaimCompletedEvent(attemptID, reason string, passes int, freedUsed, freedAllocated, released int64, note string) ReclaimCompletedEvent {
	return ReclaimCompletedEvent{
		baseEvent:      newBaseEvent(TypeReclaimCompleted),
		AttemptID:      attemptID,
		Reason:         reason,
		Passes:         passes,
		FreedUsed:      freedUsed,
		FreedAllocated: freedAllocated,
		Released:       released,
		Note:           note,
	}
}

// MemorySampledEvent is emitted by the monitor on every cycle.
type MemorySampledEvent struct {
	baseEvent
	UsedBytes      uint64
	AllocatedBytes uint64
	MaxBytes       uint64
	Ratio          float64
}

// NewMemorySampledEvent creates a MemorySampledEvent.
func NewMemorySampledEvent(used, allocated, ceiling uint64, ratio float64) MemorySampledEvent {
	return MemorySampledEvent{
		baseEvent:      newBaseEvent(TypeMemorySampled),
		UsedBytes:      used,
		AllocatedBytes: allocated,
		MaxBytes:       ceiling,
		Ratio:          ratio,
	}
}

// -----------------------------------------------------------------------------
// Configuration Events
// -----------------------------------------------------------------------------

// ConfigReloadedEvent is emitted after configuration was re-read and applied.
type ConfigReloadedEvent struct {
	baseEvent
	Source string // "command" or "watch"
	Err    string // Non-empty when the reload was rejected
}

// NewConfigReloadedEvent creates a ConfigReloadedEvent.
func NewConfigReloadedEvent(source, errMsg string) ConfigReloadedEvent {
	return ConfigReloadedEvent{
		baseEvent: newBaseEvent(TypeConfigReloaded),
		Source:    source,
		Err:       errMsg,
	}
}
