package road

import (
	"encoding/json"
	"errors"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/urishab/carla/internal/geo"
)

// ErrMapNotFound is returned by LoadMap when no waypoints are stored under the name.
var ErrMapNotFound = errors.New("map not found")

// MapWaypoint is the persisted form of a Waypoint.
type MapWaypoint struct {
	ID        uint64         `json:"id" gorm:"primaryKey;autoIncrement:false"`
	MapName   string         `json:"mapName" gorm:"primaryKey;size:127"`
	RoadID    uint32         `json:"roadId"`
	SectionID uint32         `json:"sectionId"`
	LaneID    int32          `json:"laneId"`
	Junction  bool           `json:"junction"`
	Position  geom.Point     `json:"position"`
	Next      datatypes.JSON `json:"next"`
}

func (*MapWaypoint) TableName() string {
	return "map_waypoints"
}

// Migrate creates or updates the map tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&MapWaypoint{}); err != nil {
		return fmt.Errorf("migrating map tables: %w", err)
	}
	return nil
}

// SaveMap replaces any stored map with the same name by m.
func SaveMap(db *gorm.DB, m *Map) error {
	rows := make([]MapWaypoint, 0, m.Len())
	for _, w := range m.waypoints {
		next := make([]uint64, len(w.next))
		for i, n := range w.next {
			next[i] = n.id
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encoding successors of %d: %w", w.id, err)
		}
		pos, err := geo.ToPoint(w.location)
		if err != nil {
			return fmt.Errorf("position of %d: %w", w.id, err)
		}
		rows = append(rows, MapWaypoint{
			ID:        w.id,
			MapName:   m.name,
			RoadID:    w.lane.RoadID,
			SectionID: w.lane.SectionID,
			LaneID:    w.lane.LaneID,
			Junction:  w.junction,
			Position:  pos,
			Next:      encoded,
		})
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("map_name = ?", m.name).Delete(&MapWaypoint{}).Error; err != nil {
			return fmt.Errorf("clearing map %s: %w", m.name, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("saving map %s: %w", m.name, err)
		}
		return nil
	})
}

// LoadMap rebuilds the named map from the database.
func LoadMap(db *gorm.DB, name string) (*Map, error) {
	var rows []MapWaypoint
	if err := db.Where("map_name = ?", name).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading map %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, name)
	}

	b := NewBuilder(name)
	for _, r := range rows {
		loc, err := geo.FromPoint(r.Position)
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", r.ID, err)
		}
		lane := LaneKey{RoadID: r.RoadID, SectionID: r.SectionID, LaneID: r.LaneID}
		if err := b.AddWaypoint(r.ID, lane, loc, r.Junction); err != nil {
			return nil, err
		}
	}
	for _, r := range rows {
		var next []uint64
		if len(r.Next) > 0 {
			if err := json.Unmarshal(r.Next, &next); err != nil {
				return nil, fmt.Errorf("decoding successors of %d: %w", r.ID, err)
			}
		}
		for _, n := range next {
			if err := b.Connect(r.ID, n); err != nil {
				return nil, err
			}
		}
	}
	return b.Build(), nil
}
