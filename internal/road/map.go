package road

import (
	"errors"
	"fmt"

	"github.com/peterstace/simplefeatures/rtree"

	"github.com/urishab/carla/internal/geo"
)

// ErrUnmappableLocation is returned when no waypoint can be resolved for a location.
var ErrUnmappableLocation = errors.New("no waypoint near location")

// Map is a built, read-only road graph with a spatial index.
type Map struct {
	name      string
	waypoints []*Waypoint
	byID      map[uint64]*Waypoint
	index     *rtree.RTree
}

// Name returns the map name given to the builder.
func (m *Map) Name() string { return m.name }

// Len returns the number of waypoints.
func (m *Map) Len() int { return len(m.waypoints) }

// Waypoints returns all waypoints in insertion order.
func (m *Map) Waypoints() []*Waypoint { return m.waypoints }

// Waypoint looks up a waypoint by id.
func (m *Map) Waypoint(id uint64) (*Waypoint, bool) {
	w, ok := m.byID[id]
	return w, ok
}

// NearestWaypoint returns the waypoint closest to loc in the XY plane.
func (m *Map) NearestWaypoint(loc geo.Vector3) (*Waypoint, error) {
	recordID, found := m.index.Nearest(rtree.Box{MinX: loc.X, MinY: loc.Y, MaxX: loc.X, MaxY: loc.Y})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnmappableLocation, loc)
	}
	return m.waypoints[recordID], nil
}

// DeadEnds returns the waypoints without successors. A vehicle whose path
// reaches one of these cannot extend its buffer any further.
func (m *Map) DeadEnds() []*Waypoint {
	var out []*Waypoint
	for _, w := range m.waypoints {
		if len(w.next) == 0 {
			out = append(out, w)
		}
	}
	return out
}

// Builder accumulates waypoints and links and produces a Map.
type Builder struct {
	name      string
	waypoints []*Waypoint
	byID      map[uint64]*Waypoint
}

// NewBuilder creates an empty builder for a map with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name: name,
		byID: make(map[uint64]*Waypoint),
	}
}

// AddWaypoint registers a waypoint. Ids must be unique.
func (b *Builder) AddWaypoint(id uint64, lane LaneKey, loc geo.Vector3, junction bool) error {
	if _, ok := b.byID[id]; ok {
		return fmt.Errorf("duplicate waypoint id %d", id)
	}
	w := &Waypoint{id: id, lane: lane, junction: junction, location: loc}
	b.waypoints = append(b.waypoints, w)
	b.byID[id] = w
	return nil
}

// Connect adds a directed link from one waypoint to another. Repeated
// links are ignored.
func (b *Builder) Connect(from, to uint64) error {
	src, ok := b.byID[from]
	if !ok {
		return fmt.Errorf("unknown waypoint id %d", from)
	}
	dst, ok := b.byID[to]
	if !ok {
		return fmt.Errorf("unknown waypoint id %d", to)
	}
	for _, n := range src.next {
		if n == dst {
			return nil
		}
	}
	src.next = append(src.next, dst)
	return nil
}

// Build indexes the waypoints and returns the finished map. The builder
// must not be used afterwards.
func (b *Builder) Build() *Map {
	items := make([]rtree.BulkItem, len(b.waypoints))
	for i, w := range b.waypoints {
		items[i] = rtree.BulkItem{
			Box:      rtree.Box{MinX: w.location.X, MinY: w.location.Y, MaxX: w.location.X, MaxY: w.location.Y},
			RecordID: i,
		}
	}
	return &Map{
		name:      b.name,
		waypoints: b.waypoints,
		byID:      b.byID,
		index:     rtree.BulkLoad(items),
	}
}
