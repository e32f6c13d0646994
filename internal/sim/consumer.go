package sim

import (
	"sync/atomic"
	"time"

	"github.com/urishab/carla/internal/localization"
	"github.com/urishab/carla/internal/messenger"
)

// Source is the consumer side of a messenger.
type Source[T any] interface {
	State() int
	ReceiveData(oldState int) messenger.DataPacket[T]
	Release(id int) int
	Stopped() bool
}

// Consumer drains one link and hands each frame to a handler on its own
// goroutine.
type Consumer[T any] struct {
	link   Source[T]
	old    int
	handle func(T)
	frames atomic.Uint64
}

// NewConsumer must be created before the producer sends its first frame.
func NewConsumer[T any](link Source[T], handle func(T)) *Consumer[T] {
	return &Consumer[T]{link: link, old: link.State(), handle: handle}
}

// Run receives frames until the link is stopped. Each frame is released
// once the handler returns; the handler must not keep references into it.
func (c *Consumer[T]) Run() {
	for {
		p := c.link.ReceiveData(c.old)
		if c.link.Stopped() {
			return
		}
		c.handle(p.Data)
		c.frames.Add(1)
		c.old = c.link.Release(p.ID)
	}
}

// Frames returns how many frames were handled.
func (c *Consumer[T]) Frames() uint64 { return c.frames.Load() }

// World owns the vehicles and the handlers that stand in for the planner,
// collision and traffic-light stages.
type World struct {
	vehicles map[uint32]*Vehicle
	dt       float64

	plannerInvalid atomic.Uint64
	pathPoints     atomic.Uint64
	collisionSeen  atomic.Uint64
	junctionAhead  atomic.Uint64
}

// NewWorld advances vehicles by step on every planner frame.
func NewWorld(vehicles []*Vehicle, step time.Duration) *World {
	w := &World{
		vehicles: make(map[uint32]*Vehicle, len(vehicles)),
		dt:       step.Seconds(),
	}
	for _, v := range vehicles {
		w.vehicles[v.ID()] = v
	}
	return w
}

// Plan steers every valid vehicle toward its target waypoint. Vehicles with
// an invalid record hold their course.
func (w *World) Plan(frame localization.PlannerFrame) {
	for _, rec := range frame {
		if rec.Actor == nil {
			continue
		}
		v, ok := w.vehicles[rec.Actor.ID()]
		if !ok {
			continue
		}
		if !rec.Valid {
			w.plannerInvalid.Add(1)
			v.Drive(0, false, w.dt)
			continue
		}
		v.Drive(rec.Deviation, rec.ApproachingTrueJunction, w.dt)
	}
}

// Collide reads every path it was lent. The buffers are only read here,
// before the frame is released.
func (w *World) Collide(frame localization.CollisionFrame) {
	for _, rec := range frame {
		if !rec.Valid || rec.Buffer == nil {
			continue
		}
		w.collisionSeen.Add(1)
		w.pathPoints.Add(uint64(rec.Buffer.Len()))
	}
}

// Signal counts vehicles whose look-ahead point is inside a junction.
func (w *World) Signal(frame localization.TrafficLightFrame) {
	for _, rec := range frame {
		if rec.Valid && rec.JunctionLookAheadWaypoint != nil && rec.JunctionLookAheadWaypoint.IsJunction() {
			w.junctionAhead.Add(1)
		}
	}
}

// WorldStats are cumulative consumer counters.
type WorldStats struct {
	PlannerInvalid uint64
	CollisionSeen  uint64
	PathPoints     uint64
	JunctionAhead  uint64
}

func (w *World) Stats() WorldStats {
	return WorldStats{
		PlannerInvalid: w.plannerInvalid.Load(),
		CollisionSeen:  w.collisionSeen.Load(),
		PathPoints:     w.pathPoints.Load(),
		JunctionAhead:  w.junctionAhead.Load(),
	}
}
