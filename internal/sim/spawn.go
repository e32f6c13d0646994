package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/samber/lo"

	"github.com/urishab/carla/internal/localization"
	"github.com/urishab/carla/internal/road"
)

// ErrNotEnoughSpawnPoints is returned when the map has fewer usable
// waypoints than requested vehicles.
var ErrNotEnoughSpawnPoints = errors.New("not enough spawn points")

// SpawnOptions controls vehicle placement.
type SpawnOptions struct {
	Seed uint64
	// SpeedLimit in m/s for every vehicle.
	SpeedLimit float64
	// InitialSpeed in m/s.
	InitialSpeed float64
	// FirstID is the id of the first vehicle; ids are consecutive.
	FirstID uint32
}

// Spawn places n vehicles on distinct non-junction waypoints that have a
// successor, each facing its waypoint's first successor.
func Spawn(m *road.Map, n int, opts SpawnOptions) ([]*Vehicle, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative vehicle count %d", n)
	}
	if opts.SpeedLimit <= 0 {
		opts.SpeedLimit = 30 / 3.6
	}
	if opts.FirstID == 0 {
		opts.FirstID = 1
	}

	candidates := lo.Filter(m.Waypoints(), func(w *road.Waypoint, _ int) bool {
		return !w.IsJunction() && len(w.Next()) > 0
	})
	if len(candidates) < n {
		return nil, fmt.Errorf("%w: want %d, map %q has %d", ErrNotEnoughSpawnPoints, n, m.Name(), len(candidates))
	}

	rng := rand.New(rand.NewPCG(opts.Seed, 0x5eed))
	order := rng.Perm(len(candidates))

	vehicles := make([]*Vehicle, n)
	for i := range vehicles {
		w := candidates[order[i]]
		dir := w.Next()[0].Location().Sub(w.Location())
		yaw := math.Atan2(dir.Y, dir.X)
		vehicles[i] = NewVehicle(opts.FirstID+uint32(i), w.Location(), yaw, opts.InitialSpeed, opts.SpeedLimit)
	}
	return vehicles, nil
}

// Roster converts vehicles to the stage's actor list.
func Roster(vehicles []*Vehicle) []localization.Actor {
	return lo.Map(vehicles, func(v *Vehicle, _ int) localization.Actor { return v })
}
