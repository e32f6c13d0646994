// Package localization maintains each vehicle's forward waypoint path and
// publishes per-vehicle results to the planner, collision and traffic-light
// stages every tick.
//
// A Stage is driven by a harness in two phases. During the compute phase
// Action is called concurrently on disjoint slot ranges; during the publish
// phase, after all Action calls for the tick have returned, DataReceiver and
// DataSender run on a single goroutine.
package localization

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/urishab/carla/internal/cache"
	"github.com/urishab/carla/internal/geo"
	"github.com/urishab/carla/internal/messenger"
	"github.com/urishab/carla/internal/queue"
	"github.com/urishab/carla/internal/road"
)

const (
	// WaypointTimeHorizon is the number of seconds of travel the path buffer covers.
	WaypointTimeHorizon = 3.0
	// MinimumHorizonLength floors the path length for slow or stopped vehicles.
	MinimumHorizonLength = 25.0
	// TargetWaypointTimeHorizon is the travel time to the steering target.
	TargetWaypointTimeHorizon = 0.5
	// TargetWaypointHorizonLength floors the steering target distance.
	TargetWaypointHorizonLength = 2.0
	// JunctionLookAheadTime is the travel time scanned for an upcoming junction.
	JunctionLookAheadTime = 2.0
	// MinimumJunctionLookAhead floors the junction scan distance.
	MinimumJunctionLookAhead = 3.0
	// HighwaySpeed is the speed limit, in m/s, above which junction flags
	// without a real branch are ignored.
	HighwaySpeed = 50.0 / 3.6

	drawnBufferPoints = 5
	drawPointSize     = 0.1
	drawLifetime      = 500 * time.Millisecond
	defaultMaxBuffer  = 4096
)

var (
	// ErrGraphIntegrity is returned when a waypoint that must have a
	// successor has none.
	ErrGraphIntegrity = errors.New("road graph integrity violation")
	// ErrUnmappableLocation is returned when no waypoint can be found for a vehicle.
	ErrUnmappableLocation = road.ErrUnmappableLocation
	// ErrSlotOutOfRange is returned by Action for indices outside the roster.
	ErrSlotOutOfRange = errors.New("slot out of range")
)

// Actor is the read-only view of a simulated vehicle.
type Actor interface {
	ID() uint32
	Location() geo.Vector3
	Velocity() geo.Vector3
	// Heading is the unit forward vector.
	Heading() geo.Vector3
	// SpeedLimit is the limit in force for the vehicle, in m/s.
	SpeedLimit() float64
}

// Graph resolves locations to road waypoints.
type Graph interface {
	NearestWaypoint(loc geo.Vector3) (*road.Waypoint, error)
}

// RoadPositionTracker is told the lane every vehicle is on each tick. It is
// called concurrently from the compute phase.
type RoadPositionTracker interface {
	UpdateVehicleRoadPosition(vehicleID uint32, lane road.LaneKey)
}

// LaneChanger decides lane changes. A non-nil result replaces the vehicle's
// path with a single waypoint on the new lane. It is called concurrently
// from the compute phase.
type LaneChanger interface {
	AssignLaneChange(actor Actor, front *road.Waypoint, lane road.LaneKey, buffers BufferSet, slots *cache.SlotIndex, roster []Actor) *road.Waypoint
}

// Renderer draws debug markers in the world.
type Renderer interface {
	DrawPoint(loc geo.Vector3, size float64, c color.RGBA, lifetime time.Duration)
}

// Link is the producer side of a downstream messenger.
type Link[T any] interface {
	State() int
	SendData(packet messenger.DataPacket[T]) int
}

// Buffer is a vehicle's forward path, front first.
type Buffer = queue.Deque[*road.Waypoint]

// PlannerData is the motion planner's per-vehicle input.
type PlannerData struct {
	Actor                   Actor
	Deviation               float64
	ApproachingTrueJunction bool
	// Valid is false when the vehicle faulted this tick.
	Valid bool
}

// CollisionData hands the collision stage the vehicle's path by reference.
// Buffer is borrowed: it stays valid, and is not written, until the
// collision stage releases the frame.
type CollisionData struct {
	Actor  Actor
	Buffer *Buffer
	Valid  bool
}

// TrafficLightData is the traffic-light stage's per-vehicle input.
type TrafficLightData struct {
	Actor                     Actor
	ClosestWaypoint           *road.Waypoint
	JunctionLookAheadWaypoint *road.Waypoint
	Valid                     bool
}

type (
	PlannerFrame      = []PlannerData
	CollisionFrame    = []CollisionData
	TrafficLightFrame = []TrafficLightData
)

// BufferSet gives the lane-change engine read access to every vehicle's
// path. The asking vehicle sees its own buffer as being written this tick;
// every other vehicle is seen through its last published buffer, which no
// worker writes during the compute phase.
type BufferSet struct {
	self    int
	current []*Buffer
	other   []*Buffer
}

// Len returns the number of slots.
func (b BufferSet) Len() int { return len(b.current) }

// Slot returns the buffer of a slot.
func (b BufferSet) Slot(slot int) (*Buffer, bool) {
	if slot < 0 || slot >= len(b.current) {
		return nil, false
	}
	if slot == b.self {
		return b.current[slot], true
	}
	return b.other[slot], true
}

// VehicleFault describes why a vehicle produced no output in a tick.
type VehicleFault struct {
	Slot      int
	VehicleID uint32
	Tick      uint64
	Err       error
}

func (f *VehicleFault) Error() string {
	return fmt.Sprintf("vehicle %d (slot %d) tick %d: %v", f.VehicleID, f.Slot, f.Tick, f.Err)
}

func (f *VehicleFault) Unwrap() error { return f.Err }

func (f *VehicleFault) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("slot", f.Slot),
		slog.Uint64("vehicleID", uint64(f.VehicleID)),
		slog.Uint64("tick", f.Tick),
		slog.Any("error", f.Err),
	)
}

// Kind names the fault class for metrics and logs.
func (f *VehicleFault) Kind() string {
	switch {
	case errors.Is(f.Err, ErrGraphIntegrity):
		return "graph_integrity"
	case errors.Is(f.Err, ErrUnmappableLocation):
		return "unmappable_location"
	default:
		return "other"
	}
}
