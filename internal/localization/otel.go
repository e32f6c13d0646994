package localization

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/urishab/carla/internal/localization"

const (
	linkPlanner      = "planner"
	linkCollision    = "collision"
	linkTrafficLight = "traffic_light"
)

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// initMetrics creates the stage counters on the global meter (no-op if not configured).
func (s *Stage) initMetrics() error {
	m := meter()

	var err error
	s.sent, err = m.Int64Counter(
		"localization.links.sent",
		metric.WithDescription("Frames published per downstream link"),
	)
	if err != nil {
		return fmt.Errorf("creating sent counter: %w", err)
	}

	s.skipped, err = m.Int64Counter(
		"localization.links.skipped",
		metric.WithDescription("Publish cycles skipped because the consumer had not caught up"),
	)
	if err != nil {
		return fmt.Errorf("creating skipped counter: %w", err)
	}

	s.faultCount, err = m.Int64Counter(
		"localization.vehicle.faults",
		metric.WithDescription("Vehicles that produced no output in a tick"),
	)
	if err != nil {
		return fmt.Errorf("creating faults counter: %w", err)
	}
	return nil
}

func (s *Stage) record(ctx context.Context, link string, sent bool) {
	attrs := metric.WithAttributes(attribute.String("link", link))
	if sent {
		s.sent.Add(ctx, 1, attrs)
	} else {
		s.skipped.Add(ctx, 1, attrs)
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	var ls *LinkStats
	switch link {
	case linkPlanner:
		ls = &s.stats.Planner
	case linkCollision:
		ls = &s.stats.Collision
	default:
		ls = &s.stats.TrafficLight
	}
	if sent {
		ls.Sent++
	} else {
		ls.Skipped++
	}
}
