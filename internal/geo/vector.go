package geo

import (
	"fmt"
	"math"
)

// Vector3 is a location or direction in the simulation's metric world frame.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// String returns pretty printed value for Vector3
func (v Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vector3) Scale(f float64) Vector3 {
	return Vector3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

func (v Vector3) Dot(o Vector3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// CrossZ returns the z component of v × o. It is positive when o lies
// counter-clockwise (to the left) of v in the XY plane.
func (v Vector3) CrossZ(o Vector3) float64 {
	return v.X*o.Y - v.Y*o.X
}

func (v Vector3) LengthSquared() float64 {
	return v.Dot(v)
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.LengthSquared())
}

// DistanceSquared returns the squared euclidean distance between two locations.
func (v Vector3) DistanceSquared(o Vector3) float64 {
	return v.Sub(o).LengthSquared()
}

// Unit returns v scaled to length 1, or the zero vector when v has no length.
func (v Vector3) Unit() Vector3 {
	l := v.Length()
	if l < 2*math.SmallestNonzeroFloat32 {
		return Vector3{}
	}
	return v.Scale(1 / l)
}

// Heading returns the unit forward vector for a yaw angle in radians.
func Heading(yaw float64) Vector3 {
	return Vector3{X: math.Cos(yaw), Y: math.Sin(yaw)}
}
