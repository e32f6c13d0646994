// Package cache holds the lookup tables shared between the stage and its
// collaborators: the vehicle slot index and last-known lane positions.
package cache

import (
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/urishab/carla/internal/road"
)

// SlotIndex maps vehicle ids to fixed array slots. It is built once from the
// roster and never changes, so it is safe for concurrent reads. Vehicles
// that join the roster later are not indexed.
type SlotIndex struct {
	slots map[uint32]int
	ids   []uint32
}

// NewSlotIndex assigns slots in roster order. Duplicate ids are an error.
func NewSlotIndex(ids []uint32) (*SlotIndex, error) {
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate vehicle ids in roster: %v", dups)
	}
	return &SlotIndex{
		slots: lo.SliceToMap(lo.Range(len(ids)), func(i int) (uint32, int) {
			return ids[i], i
		}),
		ids: append([]uint32(nil), ids...),
	}, nil
}

// Slot returns the slot of a vehicle id.
func (s *SlotIndex) Slot(id uint32) (int, bool) {
	slot, ok := s.slots[id]
	return slot, ok
}

// VehicleID returns the vehicle id at a slot.
func (s *SlotIndex) VehicleID(slot int) (uint32, bool) {
	if slot < 0 || slot >= len(s.ids) {
		return 0, false
	}
	return s.ids[slot], true
}

// Len returns the number of slots.
func (s *SlotIndex) Len() int { return len(s.ids) }

// LanePositions caches the last known lane of every vehicle.
// It is written from the parallel compute phase, so every access locks.
type LanePositions struct {
	m     sync.Mutex
	lanes map[uint32]road.LaneKey
}

func NewLanePositions() *LanePositions {
	return &LanePositions{
		lanes: make(map[uint32]road.LaneKey),
	}
}

// Set stores the lane of a vehicle and returns the previous one.
func (c *LanePositions) Set(id uint32, key road.LaneKey) (road.LaneKey, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	prev, ok := c.lanes[id]
	c.lanes[id] = key
	return prev, ok
}

func (c *LanePositions) Get(id uint32) (road.LaneKey, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	key, ok := c.lanes[id]
	return key, ok
}

func (c *LanePositions) Delete(id uint32) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.lanes, id)
}

func (c *LanePositions) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.lanes)
}

// Reset drops every cached lane.
func (c *LanePositions) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.lanes = make(map[uint32]road.LaneKey)
}
