package localization

import (
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/urishab/carla/internal/cache"
	"github.com/urishab/carla/internal/geo"
	"github.com/urishab/carla/internal/messenger"
	"github.com/urishab/carla/internal/queue"
	"github.com/urishab/carla/internal/road"
)

var (
	laneA = road.LaneKey{RoadID: 1, SectionID: 0, LaneID: -1}
	laneB = road.LaneKey{RoadID: 1, SectionID: 0, LaneID: -2}
)

type fakeActor struct {
	id       uint32
	loc      geo.Vector3
	velocity geo.Vector3
	heading  geo.Vector3
	limit    float64
}

func (a *fakeActor) ID() uint32            { return a.id }
func (a *fakeActor) Location() geo.Vector3 { return a.loc }
func (a *fakeActor) Velocity() geo.Vector3 { return a.velocity }
func (a *fakeActor) Heading() geo.Vector3  { return a.heading }
func (a *fakeActor) SpeedLimit() float64   { return a.limit }

// eastbound returns a vehicle at (x, y) heading +X.
func eastbound(id uint32, x, y, speed float64) *fakeActor {
	return &fakeActor{
		id:       id,
		loc:      geo.Vector3{X: x, Y: y},
		velocity: geo.Vector3{X: speed},
		heading:  geo.Vector3{X: 1},
		limit:    30 / 3.6,
	}
}

type fakeTracker struct {
	mu    sync.Mutex
	lanes map[uint32]road.LaneKey
}

func (f *fakeTracker) UpdateVehicleRoadPosition(id uint32, lane road.LaneKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lanes == nil {
		f.lanes = make(map[uint32]road.LaneKey)
	}
	f.lanes[id] = lane
}

type laneChangerFunc func(actor Actor, front *road.Waypoint, lane road.LaneKey, buffers BufferSet, slots *cache.SlotIndex, roster []Actor) *road.Waypoint

func (f laneChangerFunc) AssignLaneChange(actor Actor, front *road.Waypoint, lane road.LaneKey, buffers BufferSet, slots *cache.SlotIndex, roster []Actor) *road.Waypoint {
	return f(actor, front, lane, buffers, slots, roster)
}

var keepLane = laneChangerFunc(func(Actor, *road.Waypoint, road.LaneKey, BufferSet, *cache.SlotIndex, []Actor) *road.Waypoint {
	return nil
})

type graphFunc func(loc geo.Vector3) (*road.Waypoint, error)

func (f graphFunc) NearestWaypoint(loc geo.Vector3) (*road.Waypoint, error) { return f(loc) }

type fakeLink[T any] struct {
	state int
	sends int
	ids   []int
	last  T
}

func (l *fakeLink[T]) State() int { return l.state }

func (l *fakeLink[T]) SendData(p messenger.DataPacket[T]) int {
	l.sends++
	l.ids = append(l.ids, p.ID)
	l.last = p.Data
	l.state++
	return l.state
}

// consume simulates the downstream stage taking the last frame.
func (l *fakeLink[T]) consume() { l.state++ }

// autoLink consumes every frame as soon as it is sent.
type autoLink[T any] struct{ fakeLink[T] }

func (l *autoLink[T]) SendData(p messenger.DataPacket[T]) int {
	l.fakeLink.SendData(p)
	l.consume()
	return l.state
}

type drawnPoint struct {
	loc      geo.Vector3
	size     float64
	color    color.RGBA
	lifetime time.Duration
}

type fakeRenderer struct{ points []drawnPoint }

func (r *fakeRenderer) DrawPoint(loc geo.Vector3, size float64, c color.RGBA, lifetime time.Duration) {
	r.points = append(r.points, drawnPoint{loc, size, c, lifetime})
}

// straightRoad builds n waypoints one metre apart along +X on laneA,
// starting at x = 0. Ids start at 1.
func straightRoad(t *testing.T, n int) *road.Map {
	t.Helper()
	b := road.NewBuilder("straight")
	for i := 0; i < n; i++ {
		require.NoError(t, b.AddWaypoint(uint64(i+1), laneA, geo.Vector3{X: float64(i)}, false))
		if i > 0 {
			require.NoError(t, b.Connect(uint64(i), uint64(i+1)))
		}
	}
	return b.Build()
}

// ladderRoad builds two parallel lanes, laneA at y = 0 and laneB at y = 1,
// where every waypoint forks into the next waypoint of both lanes.
func ladderRoad(t *testing.T, n int) *road.Map {
	t.Helper()
	b := road.NewBuilder("ladder")
	for i := 0; i < n; i++ {
		require.NoError(t, b.AddWaypoint(uint64(i+1), laneA, geo.Vector3{X: float64(i)}, false))
		require.NoError(t, b.AddWaypoint(uint64(1000+i+1), laneB, geo.Vector3{X: float64(i), Y: 1}, false))
	}
	for i := 1; i < n; i++ {
		a, bb := uint64(i), uint64(1000+i)
		require.NoError(t, b.Connect(a, a+1))
		require.NoError(t, b.Connect(a, bb+1))
		require.NoError(t, b.Connect(bb, bb+1))
		require.NoError(t, b.Connect(bb, a+1))
	}
	return b.Build()
}

func bufferOf(ws ...*road.Waypoint) *Buffer {
	buf := queue.New[*road.Waypoint](len(ws))
	for _, w := range ws {
		buf.PushBack(w)
	}
	return buf
}

func waypoints(t *testing.T, m *road.Map, ids ...uint64) []*road.Waypoint {
	t.Helper()
	out := make([]*road.Waypoint, len(ids))
	for i, id := range ids {
		w, ok := m.Waypoint(id)
		require.True(t, ok, "waypoint %d", id)
		out[i] = w
	}
	return out
}

type testLinks struct {
	planner      *autoLink[PlannerFrame]
	collision    *fakeLink[CollisionFrame]
	trafficLight *fakeLink[TrafficLightFrame]
}

func newTestStage(t *testing.T, graph Graph, roster []Actor, changer LaneChanger, opts Options) (*Stage, *testLinks, *fakeTracker) {
	t.Helper()
	links := &testLinks{
		planner:      &autoLink[PlannerFrame]{},
		collision:    &fakeLink[CollisionFrame]{},
		trafficLight: &fakeLink[TrafficLightFrame]{},
	}
	tracker := &fakeTracker{}
	if changer == nil {
		changer = keepLane
	}
	s, err := New(Dependencies{
		Roster:       roster,
		Graph:        graph,
		Tracker:      tracker,
		LaneChanger:  changer,
		Planner:      links.planner,
		Collision:    links.collision,
		TrafficLight: links.trafficLight,
	}, opts)
	require.NoError(t, err)
	return s, links, tracker
}

func currentBuffer(s *Stage, slot int) *Buffer {
	return s.collision.Current().buffers[slot]
}

var errNoRoad = errors.New("no road here")
