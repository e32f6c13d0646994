// Package sim is a small kinematic world that drives the localization stage
// without a simulator attached.
package sim

import (
	"math"
	"sync"

	"github.com/urishab/carla/internal/geo"
	"github.com/urishab/carla/internal/localization"
)

var _ localization.Actor = (*Vehicle)(nil)

const (
	// maxYawRate limits steering, in rad/s.
	maxYawRate = math.Pi / 2
	// acceleration applies to both speeding up and braking, in m/s².
	acceleration = 3.0
	// junctionSpeedFactor scales the speed limit near a true junction.
	junctionSpeedFactor = 0.5
)

// Vehicle is a point-mass vehicle moving along its heading. It is safe for
// concurrent use.
type Vehicle struct {
	id         uint32
	speedLimit float64

	mu       sync.RWMutex
	location geo.Vector3
	yaw      float64
	speed    float64
}

// NewVehicle places a vehicle at loc facing yaw radians, driving at speed m/s.
func NewVehicle(id uint32, loc geo.Vector3, yaw, speed, speedLimit float64) *Vehicle {
	return &Vehicle{
		id:         id,
		location:   loc,
		yaw:        yaw,
		speed:      speed,
		speedLimit: speedLimit,
	}
}

func (v *Vehicle) ID() uint32 { return v.id }

func (v *Vehicle) SpeedLimit() float64 { return v.speedLimit }

func (v *Vehicle) Location() geo.Vector3 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.location
}

func (v *Vehicle) Heading() geo.Vector3 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return geo.Heading(v.yaw)
}

func (v *Vehicle) Velocity() geo.Vector3 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return geo.Heading(v.yaw).Scale(v.speed)
}

// Speed returns the current speed in m/s.
func (v *Vehicle) Speed() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.speed
}

// turnAngle recovers the signed angle to the target from a deviation value
// (1 - cos θ, negative when the target is to the right).
func turnAngle(deviation float64) float64 {
	c := 1 - math.Abs(deviation)
	c = math.Max(-1, math.Min(1, c))
	return math.Copysign(math.Acos(c), deviation)
}

// Drive applies one planner command and moves the vehicle dt seconds.
func (v *Vehicle) Drive(deviation float64, nearJunction bool, dt float64) {
	if dt <= 0 {
		return
	}
	turn := turnAngle(deviation)
	limit := maxYawRate * dt
	turn = math.Max(-limit, math.Min(limit, turn))

	target := v.speedLimit
	if nearJunction {
		target *= junctionSpeedFactor
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.yaw = math.Remainder(v.yaw+turn, 2*math.Pi)
	switch {
	case v.speed < target:
		v.speed = math.Min(target, v.speed+acceleration*dt)
	case v.speed > target:
		v.speed = math.Max(target, v.speed-acceleration*dt)
	}
	v.location = v.location.Add(geo.Heading(v.yaw).Scale(v.speed * dt))
}
