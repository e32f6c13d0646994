package main

import (
	"fmt"
	"os"

	"github.com/urishab/carla/internal/config"
	"github.com/urishab/carla/internal/database"
	"github.com/urishab/carla/internal/road"
)

// loadMap builds the road map from the configured source. A GeoJSON map is
// also stored in the database when saveToDb is set.
func loadMap(mapCfg config.MapConfig, dbCfg config.DBConfig) (*road.Map, error) {
	switch mapCfg.Source {
	case "geojson", "":
		data, err := os.ReadFile(mapCfg.Path)
		if err != nil {
			return nil, fmt.Errorf("reading map file: %w", err)
		}
		m, err := road.LoadGeoJSON(data, road.GeoJSONOptions{
			Name:       mapCfg.Name,
			Spacing:    mapCfg.Spacing,
			Geographic: mapCfg.Geographic,
			OriginLon:  mapCfg.OriginLon,
			OriginLat:  mapCfg.OriginLat,
		})
		if err != nil {
			return nil, err
		}
		if mapCfg.SaveToDB {
			if err := storeMap(m, dbCfg); err != nil {
				return nil, err
			}
		}
		return m, nil

	case "db":
		db, err := database.Open(database.Config(dbCfg))
		if err != nil {
			return nil, fmt.Errorf("opening map database: %w", err)
		}
		if err := road.Migrate(db); err != nil {
			return nil, err
		}
		return road.LoadMap(db, mapCfg.Name)

	default:
		return nil, fmt.Errorf("unknown map source: %s", mapCfg.Source)
	}
}

func storeMap(m *road.Map, dbCfg config.DBConfig) error {
	db, err := database.Open(database.Config(dbCfg))
	if err != nil {
		return fmt.Errorf("opening map database: %w", err)
	}
	if err := road.Migrate(db); err != nil {
		return err
	}
	if err := road.SaveMap(db, m); err != nil {
		SlogManager.WriteLog("storeMap", fmt.Sprintf("Failed to store map %s: %v", m.Name(), err), "ERROR")
		return err
	}
	SlogManager.WriteLog("storeMap", fmt.Sprintf("Stored map %s with %d waypoints in %s", m.Name(), m.Len(), dbCfg.Driver), "INFO")
	return nil
}
