package road

import (
	"fmt"
	"math"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/urishab/carla/internal/geo"
)

// DefaultSpacing is the distance between consecutive waypoints of a lane
// when GeoJSONOptions.Spacing is not set.
const DefaultSpacing = 2.0

// GeoJSONOptions controls how lane geometries are turned into waypoints.
type GeoJSONOptions struct {
	Name string
	// Spacing is the distance in metres between generated waypoints.
	Spacing float64
	// Geographic marks coordinates as WGS84 lon/lat; they are projected
	// around (OriginLon, OriginLat).
	Geographic bool
	OriginLon  float64
	OriginLat  float64
}

type lane struct {
	featureID int
	key       LaneKey
	junction  bool
	next      []int
	first     uint64
	last      uint64
}

// LoadGeoJSON builds a map from a FeatureCollection with one LineString
// feature per lane. Each feature carries integer properties id, road_id,
// section_id and lane_id, an optional boolean junction and an optional
// array next listing the ids of the lanes it flows into.
func LoadGeoJSON(data []byte, opts GeoJSONOptions) (*Map, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse road geojson: %w", err)
	}
	if opts.Spacing <= 0 {
		opts.Spacing = DefaultSpacing
	}

	var projector *geo.Projector
	if opts.Geographic {
		projector = geo.NewProjector(opts.OriginLon, opts.OriginLat)
	}

	b := NewBuilder(opts.Name)
	lanes := make(map[int]*lane, len(fc.Features))
	order := make([]int, 0, len(fc.Features))
	var nextID uint64

	for i, f := range fc.Features {
		if f.Geometry == nil || !f.Geometry.IsLineString() {
			return nil, fmt.Errorf("feature %d: expected LineString geometry", i)
		}
		l, err := laneFromProperties(f.Properties)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if _, dup := lanes[l.featureID]; dup {
			return nil, fmt.Errorf("feature %d: duplicate lane id %d", i, l.featureID)
		}

		line, elevations := toLineString(f.Geometry.LineString, projector)
		if len(line) < 2 {
			return nil, fmt.Errorf("lane %d: needs at least 2 coordinates", l.featureID)
		}

		points := resample(line, elevations, opts.Spacing)
		for j, p := range points {
			nextID++
			if err := b.AddWaypoint(nextID, l.key, p, l.junction); err != nil {
				return nil, err
			}
			if j == 0 {
				l.first = nextID
				continue
			}
			if err := b.Connect(nextID-1, nextID); err != nil {
				return nil, err
			}
		}
		l.last = nextID
		lanes[l.featureID] = l
		order = append(order, l.featureID)
	}

	for _, id := range order {
		l := lanes[id]
		for _, n := range l.next {
			succ, ok := lanes[n]
			if !ok {
				return nil, fmt.Errorf("lane %d: unknown successor lane %d", l.featureID, n)
			}
			if err := b.Connect(l.last, succ.first); err != nil {
				return nil, err
			}
		}
	}

	return b.Build(), nil
}

func laneFromProperties(props map[string]interface{}) (*lane, error) {
	id, err := intProperty(props, "id")
	if err != nil {
		return nil, err
	}
	roadID, err := intProperty(props, "road_id")
	if err != nil {
		return nil, err
	}
	sectionID, err := intProperty(props, "section_id")
	if err != nil {
		return nil, err
	}
	laneID, err := intProperty(props, "lane_id")
	if err != nil {
		return nil, err
	}

	l := &lane{
		featureID: id,
		key:       LaneKey{RoadID: uint32(roadID), SectionID: uint32(sectionID), LaneID: int32(laneID)},
	}
	if j, ok := props["junction"].(bool); ok {
		l.junction = j
	}
	if raw, ok := props["next"].([]interface{}); ok {
		for _, v := range raw {
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("lane %d: next must hold numbers", id)
			}
			l.next = append(l.next, int(f))
		}
	}
	return l, nil
}

func intProperty(props map[string]interface{}, key string) (int, error) {
	v, ok := props[key]
	if !ok {
		return 0, fmt.Errorf("missing property %q", key)
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("property %q must be an integer", key)
	}
	return int(f), nil
}

func toLineString(coords [][]float64, projector *geo.Projector) (orb.LineString, []float64) {
	line := make(orb.LineString, 0, len(coords))
	elevations := make([]float64, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		var z float64
		if len(c) > 2 {
			z = c[2]
		}
		if projector != nil {
			v := projector.Project(c[0], c[1], z)
			line = append(line, orb.Point{v.X, v.Y})
		} else {
			line = append(line, orb.Point{c[0], c[1]})
		}
		elevations = append(elevations, z)
	}
	return line, elevations
}

// resample walks the line and emits a point every spacing metres, always
// keeping both end points.
func resample(line orb.LineString, elevations []float64, spacing float64) []geo.Vector3 {
	total := planar.Length(line)
	out := make([]geo.Vector3, 0, int(total/spacing)+2)
	out = append(out, geo.Vector3{X: line[0][0], Y: line[0][1], Z: elevations[0]})

	carried := 0.0
	for i := 1; i < len(line); i++ {
		a, b := line[i-1], line[i]
		seg := planar.Distance(a, b)
		if seg == 0 {
			continue
		}
		for d := spacing - carried; d < seg; d += spacing {
			t := d / seg
			out = append(out, geo.Vector3{
				X: a[0] + (b[0]-a[0])*t,
				Y: a[1] + (b[1]-a[1])*t,
				Z: elevations[i-1] + (elevations[i]-elevations[i-1])*t,
			})
		}
		carried = math.Mod(carried+seg, spacing)
	}

	end := geo.Vector3{X: line[len(line)-1][0], Y: line[len(line)-1][1], Z: elevations[len(elevations)-1]}
	if out[len(out)-1].DistanceSquared(end) > 1e-9 {
		out = append(out, end)
	}
	return out
}
