// Package memory samples the process's memory occupancy and classifies the
// runtime environment the reclamation strategy has to work with.
//
// Sampling is diagnostic: every read degrades to zero values rather than
// returning an error, and a zero ceiling yields a usage ratio of zero.
package memory

import "fmt"

// Bytes is a byte count with human-readable rendering.
type Bytes uint64

// MiB returns the size in whole mebibytes.
func (b Bytes) MiB() int64 { return int64(b / (1 << 20)) }

// Humanized returns a human-readable string with an automatic unit.
func (b Bytes) Humanized() string {
	v := float64(b)
	switch {
	case b >= 1<<40:
		return fmt.Sprintf("%.2f TiB", v/(1<<40))
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GiB", v/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MiB", v/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KiB", v/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// Snapshot is a point-in-time memory reading. It is a plain value and is
// never mutated after creation.
type Snapshot struct {
	// UsedBytes is live heap memory.
	UsedBytes uint64
	// AllocatedBytes is memory committed from the OS and not yet returned.
	AllocatedBytes uint64
	// MaxBytes is the hard ceiling, or 0 when none could be determined.
	MaxBytes uint64
}

// Ratio returns UsedBytes / MaxBytes, or 0 when the ceiling is unknown.
func (s Snapshot) Ratio() float64 {
	if s.MaxBytes == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.MaxBytes)
}

// AllocatedRatio returns AllocatedBytes / MaxBytes, or 0 when the ceiling is
// unknown.
func (s Snapshot) AllocatedRatio() float64 {
	if s.MaxBytes == 0 {
		return 0
	}
	return float64(s.AllocatedBytes) / float64(s.MaxBytes)
}

// UsedMiB returns the used size in whole mebibytes.
func (s Snapshot) UsedMiB() int64 { return Bytes(s.UsedBytes).MiB() }

// AllocatedMiB returns the committed size in whole mebibytes.
func (s Snapshot) AllocatedMiB() int64 { return Bytes(s.AllocatedBytes).MiB() }

// MaxMiB returns the ceiling in whole mebibytes.
func (s Snapshot) MaxMiB() int64 { return Bytes(s.MaxBytes).MiB() }

// String renders the snapshot for log lines.
func (s Snapshot) String() string {
	return fmt.Sprintf("Memory[Used=%dMiB, Allocated=%dMiB, Max=%dMiB, Usage=%.1f%%]",
		s.UsedMiB(), s.AllocatedMiB(), s.MaxMiB(), s.Ratio()*100)
}
