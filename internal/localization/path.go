package localization

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/urishab/carla/internal/geo"
	"github.com/urishab/carla/internal/road"
)

// flat drops the vertical component; road vehicles steer in the ground plane.
func flat(v geo.Vector3) geo.Vector3 {
	return geo.Vector3{X: v.X, Y: v.Y}
}

// deviationDot is the cosine between the heading and the direction to target.
// It is 0 when target coincides with loc.
func deviationDot(loc, heading, target geo.Vector3) float64 {
	next := flat(target.Sub(loc)).Unit()
	return flat(heading).Unit().Dot(next)
}

// deviationCross is the z component of heading × direction to target;
// positive when target lies to the left of the heading.
func deviationCross(loc, heading, target geo.Vector3) float64 {
	next := flat(target.Sub(loc)).Unit()
	return flat(heading).Unit().CrossZ(next)
}

// horizonLength is how far ahead a vehicle's path should reach.
func horizonLength(speed float64) float64 {
	return math.Max(speed*WaypointTimeHorizon, MinimumHorizonLength)
}

// targetDistance is how far ahead the steering target is picked.
func targetDistance(speed float64) float64 {
	return math.Max(math.Ceil(speed*TargetWaypointTimeHorizon), TargetWaypointHorizonLength)
}

// lookAheadDistance is how far ahead junctions are searched for.
func lookAheadDistance(speed float64) float64 {
	return math.Max(JunctionLookAheadTime*speed, MinimumJunctionLookAhead)
}

// resync copies the published generation over the current one when their
// fronts are on different lanes. It reports whether a copy happened.
func resync(current, other *Buffer) bool {
	if current.Empty() || other.Empty() {
		return false
	}
	if current.Front().Lane() == other.Front().Lane() {
		return false
	}
	current.Assign(other)
	return true
}

// purge drops waypoints at or behind the vehicle and returns how many went.
func purge(buf *Buffer, loc, heading geo.Vector3) int {
	n := 0
	for !buf.Empty() && deviationDot(loc, heading, buf.Front().Location()) <= 0 {
		buf.PopFront()
		n++
	}
	return n
}

// extend grows buf until its back is farther than horizon from its front.
// Forks are resolved with rng.
func extend(buf *Buffer, horizon float64, rng *rand.Rand, maxLen int) error {
	horizonSq := horizon * horizon
	front := buf.Front()
	for buf.Back().DistanceSquared(front) <= horizonSq {
		back := buf.Back()
		next := back.Next()
		switch {
		case len(next) == 0:
			return fmt.Errorf("%w: waypoint %d has no successor %.1fm short of horizon",
				ErrGraphIntegrity, back.ID(), horizon-math.Sqrt(back.DistanceSquared(front)))
		case buf.Len() >= maxLen:
			return fmt.Errorf("%w: horizon of %.1fm not reached within %d waypoints",
				ErrGraphIntegrity, horizon, maxLen)
		case len(next) > 1:
			buf.PushBack(next[rng.IntN(len(next))])
		default:
			buf.PushBack(next[0])
		}
	}
	return nil
}

// scanAhead walks the buffer from the front while the candidate is closer
// than distance to the front and returns the last candidate and its index.
func scanAhead(buf *Buffer, distance float64) (*road.Waypoint, int) {
	front := buf.Front()
	distanceSq := distance * distance
	candidate, index := front, 0
	for i := 0; i < buf.Len() && front.DistanceSquared(candidate) < distanceSq; i++ {
		candidate = buf.At(i)
		index = i
	}
	return candidate, index
}

// deviation approximates the signed heading error towards target: 0 dead
// ahead, growing with the angle, positive to the left and negative to the right.
func deviation(loc, heading, target geo.Vector3) float64 {
	d := 1 - deviationDot(loc, heading, target)
	if deviationCross(loc, heading, target) < 0 {
		d = -d
	}
	return d
}

// approachingTrueJunction reports whether the vehicle is heading into a
// junction. Above HighwaySpeed, a junction flag only counts if the path
// branches somewhere before the look-ahead point.
func approachingTrueJunction(buf *Buffer, lookAhead *road.Waypoint, lookAheadIndex int, speedLimit float64) bool {
	if !lookAhead.IsJunction() || buf.Front().IsJunction() {
		return false
	}
	if speedLimit <= HighwaySpeed {
		return true
	}
	for i := 0; i < lookAheadIndex; i++ {
		if len(buf.At(i).Next()) > 1 {
			return true
		}
	}
	return false
}
