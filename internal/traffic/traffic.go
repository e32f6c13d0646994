// Package traffic tracks which lane every vehicle is on and hands lane
// change requests to a pluggable policy.
package traffic

import (
	"sync"

	"github.com/urishab/carla/internal/cache"
	"github.com/urishab/carla/internal/localization"
	"github.com/urishab/carla/internal/road"
)

// Policy decides whether a vehicle should move to another lane. A nil
// result keeps the vehicle on its lane. Implementations are called
// concurrently for different vehicles.
type Policy interface {
	Decide(actor localization.Actor, front *road.Waypoint, lane road.LaneKey, buffers localization.BufferSet, slots *cache.SlotIndex, roster []localization.Actor) *road.Waypoint
}

// KeepLane never changes lanes.
type KeepLane struct{}

func (KeepLane) Decide(localization.Actor, *road.Waypoint, road.LaneKey, localization.BufferSet, *cache.SlotIndex, []localization.Actor) *road.Waypoint {
	return nil
}

// Distributor records vehicle lane positions and per-lane occupancy.
type Distributor struct {
	positions *cache.LanePositions
	policy    Policy

	mu        sync.RWMutex
	occupancy map[road.LaneKey]map[uint32]struct{}
}

// NewDistributor creates a distributor writing into positions. A nil policy
// means KeepLane.
func NewDistributor(positions *cache.LanePositions, policy Policy) *Distributor {
	if policy == nil {
		policy = KeepLane{}
	}
	return &Distributor{
		positions: positions,
		policy:    policy,
		occupancy: make(map[road.LaneKey]map[uint32]struct{}),
	}
}

// UpdateVehicleRoadPosition moves a vehicle to lane.
func (d *Distributor) UpdateVehicleRoadPosition(vehicleID uint32, lane road.LaneKey) {
	prev, existed := d.positions.Set(vehicleID, lane)
	if existed && prev == lane {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existed {
		if vehicles, ok := d.occupancy[prev]; ok {
			delete(vehicles, vehicleID)
			if len(vehicles) == 0 {
				delete(d.occupancy, prev)
			}
		}
	}
	vehicles, ok := d.occupancy[lane]
	if !ok {
		vehicles = make(map[uint32]struct{})
		d.occupancy[lane] = vehicles
	}
	vehicles[vehicleID] = struct{}{}
}

// AssignLaneChange asks the policy for a change-over waypoint.
func (d *Distributor) AssignLaneChange(actor localization.Actor, front *road.Waypoint, lane road.LaneKey, buffers localization.BufferSet, slots *cache.SlotIndex, roster []localization.Actor) *road.Waypoint {
	return d.policy.Decide(actor, front, lane, buffers, slots, roster)
}

// Occupancy returns the ids of vehicles last seen on lane.
func (d *Distributor) Occupancy(lane road.LaneKey) []uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]uint32, 0, len(d.occupancy[lane]))
	for id := range d.occupancy[lane] {
		out = append(out, id)
	}
	return out
}

// Lanes returns the number of lanes with at least one vehicle.
func (d *Distributor) Lanes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.occupancy)
}
