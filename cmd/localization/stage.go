package main

import (
	"time"

	"github.com/urishab/carla/internal/debugdraw"
	"github.com/urishab/carla/internal/influx"
	"github.com/urishab/carla/internal/localization"
	"github.com/urishab/carla/internal/session"
	"github.com/urishab/carla/internal/worker"
)

var _ worker.FaultReporter = (*instrumentedStage)(nil)

// instrumentedStage adds debug drawing and fault telemetry around the
// localization stage. Both extras are optional.
type instrumentedStage struct {
	*localization.Stage

	renderer  *debugdraw.Renderer
	drawSlots int
	influx    *influx.Manager
	session   *session.Context
}

// Faults forwards the stage's faults to the worker and records each one in
// influx.
func (s *instrumentedStage) Faults() []worker.Fault {
	faults := s.Stage.Faults()
	out := make([]worker.Fault, len(faults))
	now := time.Now()
	for i, f := range faults {
		out[i] = f
		if s.influx == nil {
			continue
		}
		if err := s.influx.WritePoint(influx.FaultPoint(s.session.MapName(), f, now)); err != nil {
			Logger.Debug("Failed to write fault point", "error", err)
		}
	}
	return out
}

// DataSender draws the watched paths before they are published.
func (s *instrumentedStage) DataSender() {
	if s.renderer == nil {
		s.Stage.DataSender()
		return
	}
	for slot := 0; slot < s.drawSlots; slot++ {
		s.DrawBuffer(slot)
	}
	s.Stage.DataSender()
	s.renderer.EndTick(s.Tick())
}
