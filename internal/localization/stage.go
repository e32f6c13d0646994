package localization

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"math/rand/v2"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/urishab/carla/internal/cache"
	"github.com/urishab/carla/internal/dualbuf"
	"github.com/urishab/carla/internal/messenger"
	"github.com/urishab/carla/internal/queue"
	"github.com/urishab/carla/internal/road"
)

// Dependencies holds the collaborators of a Stage.
type Dependencies struct {
	Roster       []Actor
	Graph        Graph
	Tracker      RoadPositionTracker
	LaneChanger  LaneChanger
	Planner      Link[PlannerFrame]
	Collision    Link[CollisionFrame]
	TrafficLight Link[TrafficLightFrame]
	// Renderer is optional; DrawBuffer is a no-op without it.
	Renderer Renderer
	Logger   *slog.Logger
}

// Options tunes a Stage.
type Options struct {
	// Seed drives fork selection. Runs with the same seed and roster take
	// the same paths.
	Seed uint64
	// BufferCapacity is the initial waypoint capacity of every buffer.
	BufferCapacity int
	// MaxBufferLength bounds path growth on graphs whose loops are shorter
	// than the horizon.
	MaxBufferLength int
}

// LinkStats counts publish decisions on one link.
type LinkStats struct {
	Sent    uint64
	Skipped uint64
}

// Stats is a snapshot of stage counters.
type Stats struct {
	Ticks        uint64
	Vehicles     int
	Faults       uint64
	LastFaults   int
	Planner      LinkStats
	Collision    LinkStats
	TrafficLight LinkStats
}

// collisionGeneration ties the collision frame to the buffers it points into;
// both change generation together.
type collisionGeneration struct {
	frame   CollisionFrame
	buffers []*Buffer
}

// Stage is the localization stage. Action may be called concurrently for
// disjoint slot ranges; everything else belongs to the publish phase.
type Stage struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	roster []Actor
	slots  *cache.SlotIndex

	planner      *dualbuf.Pair[PlannerFrame]
	collision    *dualbuf.Pair[collisionGeneration]
	trafficLight *dualbuf.Pair[TrafficLightFrame]

	plannerState      int
	collisionState    int
	trafficLightState int

	sources []*rand.PCG
	rngs    []*rand.Rand
	faults  []*VehicleFault
	tick    uint64

	statsMu sync.Mutex
	stats   Stats

	sent       metric.Int64Counter
	skipped    metric.Int64Counter
	faultCount metric.Int64Counter
}

// New builds a stage for a fixed roster. Vehicles that join later are not
// tracked; build a new stage instead.
func New(deps Dependencies, opts Options) (*Stage, error) {
	switch {
	case deps.Graph == nil:
		return nil, errors.New("localization: graph is required")
	case deps.Tracker == nil:
		return nil, errors.New("localization: road position tracker is required")
	case deps.LaneChanger == nil:
		return nil, errors.New("localization: lane changer is required")
	case deps.Planner == nil || deps.Collision == nil || deps.TrafficLight == nil:
		return nil, errors.New("localization: all three links are required")
	}
	if opts.BufferCapacity <= 0 {
		opts.BufferCapacity = 64
	}
	if opts.MaxBufferLength <= 0 {
		opts.MaxBufferLength = defaultMaxBuffer
	}

	ids := make([]uint32, len(deps.Roster))
	for i, a := range deps.Roster {
		if a == nil {
			return nil, fmt.Errorf("localization: roster entry %d is nil", i)
		}
		ids[i] = a.ID()
	}
	slots, err := cache.NewSlotIndex(ids)
	if err != nil {
		return nil, fmt.Errorf("localization: %w", err)
	}

	n := len(deps.Roster)
	s := &Stage{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger,
		roster: append([]Actor(nil), deps.Roster...),
		slots:  slots,
		planner: dualbuf.New(func() PlannerFrame {
			return make(PlannerFrame, n)
		}),
		collision: dualbuf.New(func() collisionGeneration {
			g := collisionGeneration{
				frame:   make(CollisionFrame, n),
				buffers: make([]*Buffer, n),
			}
			for i := range g.buffers {
				g.buffers[i] = queue.New[*road.Waypoint](opts.BufferCapacity)
			}
			return g
		}),
		trafficLight: dualbuf.New(func() TrafficLightFrame {
			return make(TrafficLightFrame, n)
		}),
		sources: make([]*rand.PCG, n),
		rngs:    make([]*rand.Rand, n),
		faults:  make([]*VehicleFault, n),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for i := range s.sources {
		s.sources[i] = rand.NewPCG(opts.Seed, uint64(ids[i]))
		s.rngs[i] = rand.New(s.sources[i])
	}

	// one behind so the first publish on every link goes out
	s.plannerState = deps.Planner.State() - 1
	s.collisionState = deps.Collision.State() - 1
	s.trafficLightState = deps.TrafficLight.State() - 1
	s.stats.Vehicles = n

	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

// Slots returns the vehicle slot index.
func (s *Stage) Slots() *cache.SlotIndex { return s.slots }

// Tick returns the number of completed publish phases.
func (s *Stage) Tick() uint64 { return s.tick }

// Action localizes every vehicle in the inclusive slot range [start, end].
// Per-vehicle failures are recorded and reported by Faults; the returned
// error is reserved for ranges outside the roster.
func (s *Stage) Action(start, end int) error {
	if start < 0 || end >= len(s.roster) {
		return fmt.Errorf("%w: [%d, %d] with %d vehicles", ErrSlotOutOfRange, start, end, len(s.roster))
	}

	gen := s.collision.Current()
	other := s.collision.InFlight()
	planner := s.planner.Current()
	trafficLight := s.trafficLight.Current()

	for i := start; i <= end; i++ {
		s.faults[i] = nil
		if err := s.localize(i, gen, other, planner, trafficLight); err != nil {
			actor := s.roster[i]
			s.faults[i] = &VehicleFault{Slot: i, VehicleID: actor.ID(), Tick: s.tick, Err: err}
			// never republish what an earlier tick wrote to this slot
			planner[i] = PlannerData{Actor: actor}
			gen.frame[i] = CollisionData{Actor: actor}
			trafficLight[i] = TrafficLightData{Actor: actor}
		}
	}
	return nil
}

func (s *Stage) localize(i int, gen, other collisionGeneration, planner PlannerFrame, trafficLight TrafficLightFrame) error {
	actor := s.roster[i]
	loc := actor.Location()
	heading := actor.Heading()
	speed := actor.Velocity().Length()
	buf := gen.buffers[i]

	resync(buf, other.buffers[i])
	purge(buf, loc, heading)

	if buf.Empty() {
		w, err := s.deps.Graph.NearestWaypoint(loc)
		if err != nil {
			return err
		}
		if w == nil {
			return fmt.Errorf("%w: %s", ErrUnmappableLocation, loc)
		}
		buf.PushBack(w)
	}

	front := buf.Front()
	lane := front.Lane()
	s.deps.Tracker.UpdateVehicleRoadPosition(actor.ID(), lane)
	if !front.IsJunction() {
		view := BufferSet{self: i, current: gen.buffers, other: other.buffers}
		if change := s.deps.LaneChanger.AssignLaneChange(actor, front, lane, view, s.slots, s.roster); change != nil {
			buf.Clear()
			buf.PushBack(change)
		}
	}

	s.sources[i].Seed(s.opts.Seed^uint64(actor.ID()), s.tick)
	if err := extend(buf, horizonLength(speed), s.rngs[i], s.opts.MaxBufferLength); err != nil {
		return err
	}

	target, _ := scanAhead(buf, targetDistance(speed))
	lookAhead, lookAheadIndex := scanAhead(buf, lookAheadDistance(speed))

	planner[i] = PlannerData{
		Actor:                   actor,
		Deviation:               deviation(loc, heading, target.Location()),
		ApproachingTrueJunction: approachingTrueJunction(buf, lookAhead, lookAheadIndex, actor.SpeedLimit()),
		Valid:                   true,
	}
	gen.frame[i] = CollisionData{Actor: actor, Buffer: buf, Valid: true}
	trafficLight[i] = TrafficLightData{
		Actor:                     actor,
		ClosestWaypoint:           buf.Front(),
		JunctionLookAheadWaypoint: lookAhead,
		Valid:                     true,
	}
	return nil
}

// DataReceiver is a no-op; localization is the first stage of the pipeline.
func (s *Stage) DataReceiver() {}

// DataSender publishes the current frames. The planner always receives its
// frame, waiting for the planner to release the previous one if needed. The
// collision and traffic-light stages only receive a frame once they have
// released the previous one; otherwise their current generation is kept and
// overwritten next tick. A generation is flipped back into Current only
// after the frame sent from it has been released.
func (s *Stage) DataSender() {
	ctx := context.Background()

	s.plannerState = s.deps.Planner.SendData(messenger.DataPacket[PlannerFrame]{
		ID:   s.plannerState,
		Data: s.planner.Current(),
	})
	s.planner.Flip()
	s.record(ctx, linkPlanner, true)

	if state := s.deps.Collision.State(); state != s.collisionState {
		s.collisionState = s.deps.Collision.SendData(messenger.DataPacket[CollisionFrame]{
			ID:   s.collisionState,
			Data: s.collision.Current().frame,
		})
		s.collision.Flip()
		s.record(ctx, linkCollision, true)
	} else {
		s.record(ctx, linkCollision, false)
	}

	if state := s.deps.TrafficLight.State(); state != s.trafficLightState {
		s.trafficLightState = s.deps.TrafficLight.SendData(messenger.DataPacket[TrafficLightFrame]{
			ID:   s.trafficLightState,
			Data: s.trafficLight.Current(),
		})
		s.trafficLight.Flip()
		s.record(ctx, linkTrafficLight, true)
	} else {
		s.record(ctx, linkTrafficLight, false)
	}

	s.tick++
	s.statsMu.Lock()
	s.stats.Ticks = s.tick
	s.statsMu.Unlock()
}

// Faults returns the vehicles that failed in the last compute phase and
// counts them. Call it between the barrier and DataSender.
func (s *Stage) Faults() []*VehicleFault {
	var out []*VehicleFault
	ctx := context.Background()
	for _, f := range s.faults {
		if f == nil {
			continue
		}
		out = append(out, f)
		s.faultCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", f.Kind())))
	}
	s.statsMu.Lock()
	s.stats.Faults += uint64(len(out))
	s.stats.LastFaults = len(out)
	s.statsMu.Unlock()
	return out
}

// Stats returns a snapshot of the counters. It is safe to call from any goroutine.
func (s *Stage) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// DrawBuffer draws the first points of a vehicle's current path.
func (s *Stage) DrawBuffer(slot int) {
	if s.deps.Renderer == nil || slot < 0 || slot >= len(s.roster) {
		return
	}
	buf := s.collision.Current().buffers[slot]
	red := color.RGBA{R: 255, A: 255}
	for i := 0; i < buf.Len() && i < drawnBufferPoints; i++ {
		s.deps.Renderer.DrawPoint(buf.At(i).Location(), drawPointSize, red, drawLifetime)
	}
}
