package memory

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_Ratio(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{"half used", Snapshot{UsedBytes: 512, MaxBytes: 1024}, 0.5},
		{"zero ceiling guarded", Snapshot{UsedBytes: 512, MaxBytes: 0}, 0},
		{"over ceiling", Snapshot{UsedBytes: 2048, MaxBytes: 1024}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.snap.Ratio(), 1e-9)
		})
	}
}

func TestSnapshot_String(t *testing.T) {
	s := Snapshot{UsedBytes: 900 << 20, AllocatedBytes: 950 << 20, MaxBytes: 1000 << 20}
	assert.Equal(t, "Memory[Used=900MiB, Allocated=950MiB, Max=1000MiB, Usage=90.0%]", s.String())
}

func TestBytes_Humanized(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512).Humanized())
	assert.Equal(t, "1.50 KiB", Bytes(1536).Humanized())
	assert.Equal(t, "2.00 GiB", Bytes(2<<30).Humanized())
}

func TestDetectFamily(t *testing.T) {
	tests := []struct {
		name string
		env  Env
		want CollectorFamily
	}{
		{"default environment", Env{}, Standard},
		{"numeric GOGC", Env{GOGC: "200"}, Standard},
		{"memory limit", Env{GOMEMLIMIT: "2GiB"}, RegionalGenerational},
		{"limit-only pacing", Env{GOGC: "off", GOMEMLIMIT: "2GiB"}, LowPause},
		{"GOGC off without limit", Env{GOGC: "off"}, Standard},
		{"garbage GOGC", Env{GOGC: "lots"}, Unknown},
		{"explicit hint wins", Env{GOGC: "off", GOMEMLIMIT: "1GiB", Hint: "standard"}, Standard},
		{"regional hint", Env{Hint: "regional"}, RegionalGenerational},
		{"bad hint", Env{Hint: "zgc"}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFamily(tt.env))
		})
	}
}

func TestDetectFixedCapacity(t *testing.T) {
	assert.True(t, DetectFixedCapacity(Snapshot{AllocatedBytes: 980, MaxBytes: 1000}))
	assert.False(t, DetectFixedCapacity(Snapshot{AllocatedBytes: 950, MaxBytes: 1000}))
	assert.False(t, DetectFixedCapacity(Snapshot{AllocatedBytes: 980, MaxBytes: 0}), "unknown ceiling is elastic")
}

func TestDetectProfile_String(t *testing.T) {
	p := DetectProfile(Env{GOMEMLIMIT: "1GiB"}, Snapshot{AllocatedBytes: 99, MaxBytes: 100})
	assert.Equal(t, "regional-generational/fixed", p.String())
}

func TestParseFamily(t *testing.T) {
	f, ok := ParseFamily("Low-Pause")
	assert.True(t, ok)
	assert.Equal(t, LowPause, f)

	_, ok = ParseFamily("shenandoah")
	assert.False(t, ok)
}

func TestResolveCeiling_ConfiguredWins(t *testing.T) {
	limit, source := ResolveCeiling(4 << 30)
	assert.Equal(t, uint64(4<<30), limit)
	assert.Equal(t, CeilingConfigured, source)
}

func TestFromMemStats(t *testing.T) {
	ms := &runtime.MemStats{HeapAlloc: 100, Sys: 500, HeapReleased: 200}
	s := fromMemStats(ms, 1000)
	assert.Equal(t, Snapshot{UsedBytes: 100, AllocatedBytes: 300, MaxBytes: 1000}, s)

	ms = &runtime.MemStats{HeapAlloc: 100, Sys: 100, HeapReleased: 200}
	assert.Zero(t, fromMemStats(ms, 1000).AllocatedBytes)
}

func TestRuntimeSampler_Sample(t *testing.T) {
	s := NewRuntimeSampler(1 << 40)
	snap := s.Sample()
	assert.Equal(t, uint64(1<<40), snap.MaxBytes)
	assert.NotZero(t, snap.UsedBytes)
	assert.Equal(t, CeilingConfigured, s.CeilingSource())
}
