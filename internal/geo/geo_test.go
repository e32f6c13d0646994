package geo

import (
	"errors"
	"math"
	"testing"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector3FromString_ValidWithZ(t *testing.T) {
	v, err := Vector3FromString("100.5,200.25,50.0")
	require.NoError(t, err)
	assert.Equal(t, Vector3{X: 100.5, Y: 200.25, Z: 50}, v)
}

func TestVector3FromString_ValidWithoutZ(t *testing.T) {
	v, err := Vector3FromString("-1, 2")
	require.NoError(t, err)
	assert.Equal(t, Vector3{X: -1, Y: 2}, v)
}

func TestVector3FromString_Invalid(t *testing.T) {
	tests := []string{"", "1", "a,b", "1,2,3,4", "1,,2"}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Vector3FromString(in)
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates, got %v", err)
			}
		})
	}
}

func TestPointRoundTrip(t *testing.T) {
	v := Vector3{X: 12.5, Y: -3, Z: 7}
	p, err := ToPoint(v)
	require.NoError(t, err)
	assert.Equal(t, geom.DimXYZ, p.CoordinatesType())

	got, err := FromPoint(p)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestToPoint_NonFinite(t *testing.T) {
	for _, v := range []Vector3{{X: math.NaN()}, {Y: math.Inf(1)}} {
		_, err := ToPoint(v)
		assert.ErrorIs(t, err, ErrInvalidCoordinates)
	}
}

func TestVectorMath(t *testing.T) {
	a := Vector3{X: 3, Y: 4}
	assert.InDelta(t, 5.0, a.Length(), 1e-9)
	assert.InDelta(t, 25.0, a.DistanceSquared(Vector3{}), 1e-9)
	assert.InDelta(t, 1.0, a.Unit().Length(), 1e-9)
	assert.Equal(t, Vector3{}, Vector3{}.Unit())

	forward := Vector3{X: 1}
	assert.Greater(t, forward.CrossZ(Vector3{Y: 1}), 0.0, "left of heading is positive")
	assert.Less(t, forward.CrossZ(Vector3{Y: -1}), 0.0, "right of heading is negative")
}

func TestHeading(t *testing.T) {
	h := Heading(math.Pi / 2)
	assert.InDelta(t, 0.0, h.X, 1e-9)
	assert.InDelta(t, 1.0, h.Y, 1e-9)
}

func TestProjector_OriginMapsToZero(t *testing.T) {
	p := NewProjector(13.4050, 52.5200)
	v := p.Project(13.4050, 52.5200, 34)
	assert.InDelta(t, 0.0, v.X, 1e-6)
	assert.InDelta(t, 0.0, v.Y, 1e-6)
	assert.Equal(t, 34.0, v.Z)
}

func TestProjector_EastIsPositiveX(t *testing.T) {
	p := NewProjector(0, 0)
	v := p.Project(0.001, 0, 0)
	// one thousandth of a degree at the equator is about 111 m
	assert.InDelta(t, 111.3, v.X, 1.0)
	assert.InDelta(t, 0.0, v.Y, 1e-6)
}
