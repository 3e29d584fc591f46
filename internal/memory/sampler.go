package memory

import (
	"math"
	"runtime"
	"runtime/debug"
)

// Sampler produces memory snapshots. Implementations must not block longer
// than a runtime statistics read and must not fail.
type Sampler interface {
	Sample() Snapshot
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func() Snapshot

// Sample calls f.
func (f SamplerFunc) Sample() Snapshot { return f() }

// Ceiling sources reported by ResolveCeiling.
const (
	CeilingConfigured = "config"
	CeilingGoMemLimit = "GOMEMLIMIT"
	CeilingCgroup     = "cgroup"
	CeilingNone       = "none"
)

// ResolveCeiling determines the effective memory ceiling. Precedence is the
// configured limit, then the runtime soft limit (GOMEMLIMIT), then the
// cgroup limit. It returns 0 and CeilingNone when nothing applies.
func ResolveCeiling(configured uint64) (uint64, string) {
	if configured > 0 {
		return configured, CeilingConfigured
	}
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		return uint64(limit), CeilingGoMemLimit
	}
	if limit := cgroupLimit(); limit > 0 {
		return limit, CeilingCgroup
	}
	return 0, CeilingNone
}

// RuntimeSampler reads Go runtime memory statistics against a ceiling that is
// resolved once at construction.
type RuntimeSampler struct {
	ceiling uint64
	source  string
}

// NewRuntimeSampler creates a sampler. configuredLimit overrides any detected
// ceiling when non-zero.
func NewRuntimeSampler(configuredLimit uint64) *RuntimeSampler {
	ceiling, source := ResolveCeiling(configuredLimit)
	return &RuntimeSampler{ceiling: ceiling, source: source}
}

// Ceiling returns the resolved ceiling in bytes.
func (s *RuntimeSampler) Ceiling() uint64 { return s.ceiling }

// CeilingSource names where the ceiling came from.
func (s *RuntimeSampler) CeilingSource() string { return s.source }

// Sample reads current runtime statistics.
func (s *RuntimeSampler) Sample() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return fromMemStats(&ms, s.ceiling)
}

func fromMemStats(ms *runtime.MemStats, ceiling uint64) Snapshot {
	committed := uint64(0)
	if ms.Sys > ms.HeapReleased {
		committed = ms.Sys - ms.HeapReleased
	}
	return Snapshot{
		UsedBytes:      ms.HeapAlloc,
		AllocatedBytes: committed,
		MaxBytes:       ceiling,
	}
}
