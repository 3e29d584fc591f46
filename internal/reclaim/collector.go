package reclaim

import (
	"runtime"
	"runtime/debug"
)

// Collector performs the actual collection work. Implementations may block.
type Collector interface {
	// Collect forces one full collection.
	Collect()
	// Release forces a collection and returns as much freed memory to the
	// OS as the runtime allows.
	Release()
}

// RuntimeCollector drives the Go runtime's collector.
type RuntimeCollector struct{}

// Collect runs runtime.GC.
func (RuntimeCollector) Collect() { runtime.GC() }

// Release runs debug.FreeOSMemory, which collects before scavenging.
func (RuntimeCollector) Release() { debug.FreeOSMemory() }
