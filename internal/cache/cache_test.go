package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urishab/carla/internal/road"
)

func TestSlotIndex(t *testing.T) {
	idx, err := NewSlotIndex([]uint32{42, 7, 100})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	tests := []struct {
		id   uint32
		slot int
	}{
		{42, 0},
		{7, 1},
		{100, 2},
	}
	for _, tt := range tests {
		slot, ok := idx.Slot(tt.id)
		require.True(t, ok)
		assert.Equal(t, tt.slot, slot)

		id, ok := idx.VehicleID(tt.slot)
		require.True(t, ok)
		assert.Equal(t, tt.id, id)
	}

	_, ok := idx.Slot(8)
	assert.False(t, ok)
	_, ok = idx.VehicleID(3)
	assert.False(t, ok)
	_, ok = idx.VehicleID(-1)
	assert.False(t, ok)
}

func TestSlotIndex_RosterIsCopied(t *testing.T) {
	roster := []uint32{1, 2}
	idx, err := NewSlotIndex(roster)
	require.NoError(t, err)

	roster[0] = 99
	id, _ := idx.VehicleID(0)
	assert.Equal(t, uint32(1), id)
}

func TestSlotIndex_Duplicates(t *testing.T) {
	_, err := NewSlotIndex([]uint32{1, 2, 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate vehicle ids")
}

func TestSlotIndex_Empty(t *testing.T) {
	idx, err := NewSlotIndex(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestLanePositions(t *testing.T) {
	c := NewLanePositions()

	_, ok := c.Get(1)
	assert.False(t, ok)

	first := road.LaneKey{RoadID: 1, SectionID: 0, LaneID: -1}
	_, existed := c.Set(1, first)
	assert.False(t, existed)

	second := road.LaneKey{RoadID: 1, SectionID: 0, LaneID: -2}
	prev, existed := c.Set(1, second)
	assert.True(t, existed)
	assert.Equal(t, first, prev)

	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, second, got)
	assert.Equal(t, 1, c.Len())

	c.Delete(1)
	assert.Equal(t, 0, c.Len())

	c.Set(2, first)
	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestLanePositions_Concurrent(t *testing.T) {
	c := NewLanePositions()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			c.Set(id, road.LaneKey{RoadID: id})
			c.Get(id)
		}(uint32(i))
	}
	wg.Wait()

	assert.Equal(t, 100, c.Len())
}
