// Package demo runs a simulated world generator so a genpause host can be
// exercised without a real workload. Each world registers a gate, produces
// fixed-size chunk buffers at a steady rate and keeps the newest ones live,
// which gives the monitor loop real heap growth to react to.
package demo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/genpause/internal/config"
	"github.com/Iron-Ham/genpause/internal/errors"
	"github.com/Iron-Ham/genpause/internal/logging"
	"github.com/Iron-Ham/genpause/internal/task"
)

// Registrar hands out gates. *task.Registry implements it.
type Registrar interface {
	Register(id string) *task.Gate
	Unregister(id string)
}

// WorldStatus is a point-in-time view of one simulated world.
type WorldStatus struct {
	ID        string
	Generated int64
	Retained  int
	Paused    bool
}

type world struct {
	id        string
	gate      *task.Gate
	generated atomic.Int64

	mu     sync.Mutex
	chunks [][]byte
	next   int
}

func (w *world) generate(size, retain int) {
	buf := make([]byte, size)
	// Touch every page so the allocation is committed, not just reserved.
	for i := 0; i < len(buf); i += 4096 {
		buf[i] = byte(i)
	}

	w.mu.Lock()
	if len(w.chunks) < retain {
		w.chunks = append(w.chunks, buf)
	} else {
		w.chunks[w.next] = buf
		w.next = (w.next + 1) % retain
	}
	w.mu.Unlock()
	w.generated.Add(1)
}

func (w *world) status() WorldStatus {
	w.mu.Lock()
	retained := len(w.chunks)
	w.mu.Unlock()
	return WorldStatus{
		ID:        w.id,
		Generated: w.generated.Load(),
		Retained:  retained,
		Paused:    w.gate.Paused(),
	}
}

// Generator drives one goroutine per world.
type Generator struct {
	registry Registrar
	cfg      config.DemoConfig
	logger   *logging.Logger

	mu     sync.Mutex
	worlds []*world
}

// NewGenerator registers a gate per configured world. Registering up front
// lets the coordinator's first pause reach every world.
func NewGenerator(registry Registrar, cfg config.DemoConfig, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	g := &Generator{
		registry: registry,
		cfg:      cfg,
		logger:   logger.WithComponent("demo"),
	}
	for _, id := range cfg.Worlds {
		g.worlds = append(g.worlds, &world{id: id, gate: registry.Register(id)})
	}
	return g
}

// Run generates chunks until ctx is done. A world blocks in its gate while
// paused. Gates are unregistered on return.
func (g *Generator) Run(ctx context.Context) error {
	size := max(g.cfg.ChunkKiB, 1) << 10
	retain := max(g.cfg.RetainChunks, 1)
	interval := time.Duration(max(g.cfg.IntervalMs, 1)) * time.Millisecond

	g.mu.Lock()
	worlds := append([]*world(nil), g.worlds...)
	g.mu.Unlock()

	g.logger.Info("demo workload started",
		"worlds", len(worlds),
		"chunk_kib", size>>10,
		"retain_chunks", retain,
		"interval_ms", interval.Milliseconds(),
	)

	p := pool.New().WithContext(ctx)
	for _, w := range worlds {
		p.Go(func(ctx context.Context) error {
			return g.runWorld(ctx, w, size, retain, interval)
		})
	}
	err := p.Wait()

	for _, w := range worlds {
		g.registry.Unregister(w.id)
	}
	g.logger.Info("demo workload stopped", "generated", g.total())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (g *Generator) runWorld(ctx context.Context, w *world, size, retain int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.gate.Wait(ctx); err != nil {
			return err
		}
		w.generate(size, retain)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status returns every world's progress.
func (g *Generator) Status() []WorldStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]WorldStatus, 0, len(g.worlds))
	for _, w := range g.worlds {
		out = append(out, w.status())
	}
	return out
}

func (g *Generator) total() int64 {
	var n int64
	for _, s := range g.Status() {
		n += s.Generated
	}
	return n
}
