// Package road provides the road-network graph the localization stage
// walks: immutable waypoints with lane identity and successor links, and a
// map answering nearest-waypoint queries.
package road

import (
	"fmt"

	"github.com/urishab/carla/internal/geo"
)

// LaneKey identifies a lane segment: road, section within the road, and
// lane within the section.
type LaneKey struct {
	RoadID    uint32 `json:"roadId"`
	SectionID uint32 `json:"sectionId"`
	LaneID    int32  `json:"laneId"`
}

// String returns pretty printed value for LaneKey
func (k LaneKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.RoadID, k.SectionID, k.LaneID)
}

// Waypoint is a node of the road graph. It is never modified once its map
// has been built, so it may be shared by any number of goroutines.
type Waypoint struct {
	id       uint64
	lane     LaneKey
	junction bool
	location geo.Vector3
	next     []*Waypoint
}

func (w *Waypoint) ID() uint64 { return w.id }

func (w *Waypoint) Lane() LaneKey { return w.lane }

// IsJunction reports whether the waypoint lies inside an intersection.
func (w *Waypoint) IsJunction() bool { return w.junction }

func (w *Waypoint) Location() geo.Vector3 { return w.location }

// Next returns the successors of w. More than one successor is a fork.
// The returned slice must not be modified.
func (w *Waypoint) Next() []*Waypoint { return w.next }

// DistanceSquared returns the squared distance between two waypoints.
func (w *Waypoint) DistanceSquared(o *Waypoint) float64 {
	return w.location.DistanceSquared(o.location)
}
