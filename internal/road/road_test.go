package road

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urishab/carla/internal/database"
	"github.com/urishab/carla/internal/geo"
)

const forkGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[0, 0], [10, 0]]},
     "properties": {"id": 1, "road_id": 1, "section_id": 0, "lane_id": -1, "next": [2, 3]}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[10, 0], [20, 0]]},
     "properties": {"id": 2, "road_id": 2, "section_id": 0, "lane_id": -1}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[10, 0], [10, 10]]},
     "properties": {"id": 3, "road_id": 3, "section_id": 0, "lane_id": 1, "junction": true}}
  ]
}`

func straightMap(t *testing.T, n int) *Map {
	t.Helper()
	b := NewBuilder("straight")
	for i := 0; i < n; i++ {
		require.NoError(t, b.AddWaypoint(uint64(i+1), LaneKey{RoadID: 1, LaneID: -1}, geo.Vector3{X: float64(i)}, false))
		if i > 0 {
			require.NoError(t, b.Connect(uint64(i), uint64(i+1)))
		}
	}
	return b.Build()
}

func TestBuilder(t *testing.T) {
	m := straightMap(t, 5)
	assert.Equal(t, "straight", m.Name())
	assert.Equal(t, 5, m.Len())

	first, ok := m.Waypoint(1)
	require.True(t, ok)
	require.Len(t, first.Next(), 1)
	assert.Equal(t, uint64(2), first.Next()[0].ID())
	assert.Equal(t, 1.0, first.DistanceSquared(first.Next()[0]))

	deadEnds := m.DeadEnds()
	require.Len(t, deadEnds, 1)
	assert.Equal(t, uint64(5), deadEnds[0].ID())
}

func TestBuilder_Errors(t *testing.T) {
	b := NewBuilder("bad")
	require.NoError(t, b.AddWaypoint(1, LaneKey{}, geo.Vector3{}, false))

	err := b.AddWaypoint(1, LaneKey{}, geo.Vector3{X: 1}, false)
	assert.ErrorContains(t, err, "duplicate waypoint id 1")

	err = b.Connect(1, 2)
	assert.ErrorContains(t, err, "unknown waypoint id 2")

	err = b.Connect(3, 1)
	assert.ErrorContains(t, err, "unknown waypoint id 3")
}

func TestBuilder_RepeatedLinkIgnored(t *testing.T) {
	b := NewBuilder("dup")
	require.NoError(t, b.AddWaypoint(1, LaneKey{}, geo.Vector3{}, false))
	require.NoError(t, b.AddWaypoint(2, LaneKey{}, geo.Vector3{X: 1}, false))
	require.NoError(t, b.Connect(1, 2))
	require.NoError(t, b.Connect(1, 2))

	m := b.Build()
	w, _ := m.Waypoint(1)
	assert.Len(t, w.Next(), 1)
}

func TestNearestWaypoint(t *testing.T) {
	m := straightMap(t, 10)

	tests := []struct {
		name string
		loc  geo.Vector3
		want uint64
	}{
		{"on waypoint", geo.Vector3{X: 3}, 4},
		{"between, closer to lower", geo.Vector3{X: 6.2, Y: 0.5}, 7},
		{"before start", geo.Vector3{X: -5, Y: 1}, 1},
		{"beyond end", geo.Vector3{X: 42}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := m.NearestWaypoint(tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.ID())
		})
	}
}

func TestNearestWaypoint_EmptyMap(t *testing.T) {
	m := NewBuilder("empty").Build()
	_, err := m.NearestWaypoint(geo.Vector3{})
	assert.ErrorIs(t, err, ErrUnmappableLocation)
}

func TestLoadGeoJSON(t *testing.T) {
	m, err := LoadGeoJSON([]byte(forkGeoJSON), GeoJSONOptions{Name: "fork"})
	require.NoError(t, err)
	assert.Equal(t, "fork", m.Name())
	// 6 waypoints per 10 m lane at 2 m spacing
	assert.Equal(t, 18, m.Len())

	last, ok := m.Waypoint(6)
	require.True(t, ok)
	assert.Equal(t, geo.Vector3{X: 10}, last.Location())
	require.Len(t, last.Next(), 2)
	assert.Equal(t, uint64(7), last.Next()[0].ID())
	assert.Equal(t, uint64(13), last.Next()[1].ID())
	assert.True(t, last.Next()[1].IsJunction())
	assert.False(t, last.Next()[0].IsJunction())
	assert.Equal(t, LaneKey{RoadID: 3, LaneID: 1}, last.Next()[1].Lane())

	mid, _ := m.Waypoint(3)
	assert.InDelta(t, 4.0, mid.Location().X, 1e-9)
	assert.Len(t, m.DeadEnds(), 2)
}

func TestLoadGeoJSON_Spacing(t *testing.T) {
	m, err := LoadGeoJSON([]byte(forkGeoJSON), GeoJSONOptions{Spacing: 5})
	require.NoError(t, err)
	// 0, 5, 10 per lane
	assert.Equal(t, 9, m.Len())
}

func TestLoadGeoJSON_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"not json", `{`, "failed to parse road geojson"},
		{
			"point geometry",
			`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`,
			"expected LineString",
		},
		{
			"missing property",
			`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,0]]},"properties":{"id":1,"road_id":1,"section_id":0}}]}`,
			`missing property "lane_id"`,
		},
		{
			"unknown successor",
			`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[1,0]]},"properties":{"id":1,"road_id":1,"section_id":0,"lane_id":1,"next":[9]}}]}`,
			"unknown successor lane 9",
		},
		{
			"single coordinate",
			`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0]]},"properties":{"id":1,"road_id":1,"section_id":0,"lane_id":1}}]}`,
			"needs at least 2 coordinates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGeoJSON([]byte(tt.input), GeoJSONOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStore_RoundTrip(t *testing.T) {
	db, err := database.GetSqliteDB("file:road_store?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	orig, err := LoadGeoJSON([]byte(forkGeoJSON), GeoJSONOptions{Name: "fork"})
	require.NoError(t, err)
	require.NoError(t, SaveMap(db, orig))
	// saving twice replaces rather than duplicates
	require.NoError(t, SaveMap(db, orig))

	loaded, err := LoadMap(db, "fork")
	require.NoError(t, err)
	require.Equal(t, orig.Len(), loaded.Len())

	for _, w := range orig.Waypoints() {
		got, ok := loaded.Waypoint(w.ID())
		require.True(t, ok, "waypoint %d", w.ID())
		assert.Equal(t, w.Lane(), got.Lane())
		assert.Equal(t, w.IsJunction(), got.IsJunction())
		assert.InDelta(t, w.Location().X, got.Location().X, 1e-9)
		assert.InDelta(t, w.Location().Y, got.Location().Y, 1e-9)
		require.Len(t, got.Next(), len(w.Next()))
		for i := range w.Next() {
			assert.Equal(t, w.Next()[i].ID(), got.Next()[i].ID())
		}
	}
}

func TestStore_MissingMap(t *testing.T) {
	db, err := database.GetSqliteDB("file:road_store_missing?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	_, err = LoadMap(db, "nowhere")
	assert.ErrorIs(t, err, ErrMapNotFound)
}
