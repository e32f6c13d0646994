// Package geo holds the vector math of the simulation world frame and the
// conversion from geographic map coordinates into that frame.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Vector3FromString parses a string in the format "x,y" or "x,y,z".
func Vector3FromString(coords string) (Vector3, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) < 2 || len(coordsSplit) > 3 {
		return Vector3{}, ErrInvalidCoordinates
	}
	var parsed [3]float64
	for i, c := range coordsSplit {
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return Vector3{}, ErrInvalidCoordinates
		}
		parsed[i] = f
	}
	return Vector3{X: parsed[0], Y: parsed[1], Z: parsed[2]}, nil
}

// ToPoint converts a world location to an XYZ point for storage.
// NaN or infinite components yield ErrInvalidCoordinates.
func ToPoint(v Vector3) (geom.Point, error) {
	p, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: v.X, Y: v.Y},
		Z:    v.Z,
		Type: geom.DimXYZ,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return p, nil
}

// FromPoint converts a stored point back to a world location.
// Empty points yield ErrInvalidCoordinates.
func FromPoint(p geom.Point) (Vector3, error) {
	c, ok := p.Coordinates()
	if !ok {
		return Vector3{}, ErrInvalidCoordinates
	}
	return Vector3{X: c.X, Y: c.Y, Z: c.Z}, nil
}

// Projector maps WGS84 longitude/latitude (EPSG:4326) into a local metric
// frame. Points go through web mercator (EPSG:3857) and are shifted so the
// origin lands on (0, 0); distances near the origin are scaled by the
// mercator factor of its latitude, which is acceptable for city-sized maps.
type Projector struct {
	transform func(a, b, c float64) (float64, float64, float64)
	originX   float64
	originY   float64
}

// NewProjector creates a projector centred on the given lon/lat origin.
func NewProjector(originLon, originLat float64) *Projector {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(originLon, originLat, 0)
	return &Projector{transform: f, originX: x, originY: y}
}

// Project converts lon/lat/elevation into the local frame.
func (p *Projector) Project(lon, lat, elev float64) Vector3 {
	x, y, _ := p.transform(lon, lat, 0)
	return Vector3{X: x - p.originX, Y: y - p.originY, Z: elev}
}
