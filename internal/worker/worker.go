// Package worker drives a pipeline stage: it splits the vehicle slots across
// goroutines for the compute phase and runs the publish phase after all of
// them have finished.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urishab/carla/internal/session"
)

// Stage is a pipeline stage driven by the manager.
type Stage interface {
	// Action computes the inclusive slot range [start, end].
	Action(start, end int) error
	DataReceiver()
	DataSender()
}

// Fault is a per-vehicle failure that did not abort the tick. Its LogValue
// carries the identifying fields.
type Fault interface {
	error
	slog.LogValuer
	Kind() string
}

// FaultReporter is an optional interface for stages that isolate
// per-vehicle failures instead of failing the tick.
type FaultReporter interface {
	Faults() []Fault
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Stage    Stage
	Vehicles int
	Workers  int
	Logger   *slog.Logger
	// Session is optional; its tick is advanced after every publish phase.
	Session *session.Context
}

// Manager runs ticks of a stage.
type Manager struct {
	deps       Dependencies
	logger     *slog.Logger
	partitions [][2]int

	mu           sync.Mutex
	lastDuration time.Duration
	ticks        uint64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) (*Manager, error) {
	if deps.Stage == nil {
		return nil, errors.New("worker: stage is required")
	}
	if deps.Vehicles < 0 {
		return nil, fmt.Errorf("worker: negative vehicle count %d", deps.Vehicles)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		deps:       deps,
		logger:     logger,
		partitions: Partition(deps.Vehicles, deps.Workers),
	}, nil
}

// Partition splits [0, n) into at most workers contiguous inclusive ranges
// whose sizes differ by at most one.
func Partition(n, workers int) [][2]int {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	out := make([][2]int, 0, workers)
	size, extra := n/workers, n%workers
	start := 0
	for w := 0; w < workers; w++ {
		end := start + size - 1
		if w < extra {
			end++
		}
		out = append(out, [2]int{start, end})
		start = end + 1
	}
	return out
}

// Partitions returns the slot ranges handed to the workers.
func (m *Manager) Partitions() [][2]int { return m.partitions }

// RunTick runs one compute phase across all partitions, waits for every
// worker, then runs the publish phase. An Action error aborts the tick
// before publishing.
func (m *Manager) RunTick(ctx context.Context) error {
	start := time.Now()

	g, _ := errgroup.WithContext(ctx)
	for _, p := range m.partitions {
		g.Go(func() error {
			return m.deps.Stage.Action(p[0], p[1])
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Error("Tick aborted", "error", err)
		return fmt.Errorf("compute phase: %w", err)
	}

	if r, ok := m.deps.Stage.(FaultReporter); ok {
		for _, f := range r.Faults() {
			m.logger.Warn("Vehicle fault", "kind", f.Kind(), "fault", f)
		}
	}

	m.deps.Stage.DataReceiver()
	m.deps.Stage.DataSender()

	m.mu.Lock()
	m.ticks++
	m.lastDuration = time.Since(start)
	ticks := m.ticks
	m.mu.Unlock()

	if m.deps.Session != nil {
		m.deps.Session.SetTick(ticks)
	}
	return nil
}

// Run runs ticks until ctx is done, maxTicks ticks have completed (0 means
// no limit) or a tick fails. interval is the minimum time between tick
// starts; zero runs ticks back to back.
func (m *Manager) Run(ctx context.Context, maxTicks uint64, interval time.Duration) error {
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	for n := uint64(0); maxTicks == 0 || n < maxTicks; n++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := m.RunTick(ctx); err != nil {
			return err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
	return nil
}

// Ticks returns the number of completed ticks.
func (m *Manager) Ticks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// GetLastTickDuration returns how long the last completed tick took.
func (m *Manager) GetLastTickDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDuration
}
