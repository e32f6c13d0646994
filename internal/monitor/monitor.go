// Package monitor periodically writes a status file and tick telemetry.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/urishab/carla/internal/influx"
	"github.com/urishab/carla/internal/localization"
	"github.com/urishab/carla/internal/session"
)

// StatsSource is satisfied by *localization.Stage.
type StatsSource interface {
	Stats() localization.Stats
}

// TickTimer is satisfied by *worker.Manager.
type TickTimer interface {
	Ticks() uint64
	GetLastTickDuration() time.Duration
}

// PointWriter is satisfied by *influx.Manager.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger     *slog.Logger
	Session    *session.Context
	Stage      StatsSource
	Manager    TickTimer
	Influx     PointWriter // optional
	StatusFile string
	Interval   time.Duration
}

// Status is one snapshot written to the status file.
type Status struct {
	Time          time.Time          `json:"time"`
	Map           string             `json:"map"`
	Ticks         uint64             `json:"ticks"`
	LastTickMs    float64            `json:"lastTickMs"`
	Stage         localization.Stats `json:"stage"`
	FaultsPerTick float64            `json:"faultsPerTick"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status and its rendered lines.
func (s *Service) GetProgramStatus() (output []string, status Status) {
	stats := s.deps.Stage.Stats()
	status = Status{
		Time:       time.Now(),
		Ticks:      s.deps.Manager.Ticks(),
		LastTickMs: float64(s.deps.Manager.GetLastTickDuration().Microseconds()) / 1000,
		Stage:      stats,
	}
	if s.deps.Session != nil {
		status.Map = s.deps.Session.MapName()
	}
	if stats.Ticks > 0 {
		status.FaultsPerTick = float64(stats.Faults) / float64(stats.Ticks)
	}

	statusStr, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		statusStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(statusStr))
	return output, status
}

// Report writes one snapshot to the status file and influx.
func (s *Service) Report(statusFile *os.File) {
	lines, status := s.GetProgramStatus()

	if statusFile != nil {
		if err := statusFile.Truncate(0); err != nil {
			s.deps.Logger.Error("Error truncating status file", "error", err)
			return
		}
		if _, err := statusFile.Seek(0, 0); err != nil {
			s.deps.Logger.Error("Error rewinding status file", "error", err)
			return
		}
		for _, line := range lines {
			statusFile.WriteString(line + "\n")
		}
	}

	if s.deps.Influx != nil && status.Ticks > 0 {
		p := influx.TickPoint(status.Map, status.Stage, s.deps.Manager.GetLastTickDuration(), status.Time)
		if err := s.deps.Influx.WritePoint(p); err != nil {
			s.deps.Logger.Error("Error writing tick point", "error", err)
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.deps.Logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				s.Report(statusFile)
				return
			case <-ticker.C:
				s.Report(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the final report.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
