// Package config loads localization.cfg.json through viper and exposes the
// typed sections used by the binary.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "localization.cfg.json"

// StageConfig holds pipeline settings
type StageConfig struct {
	Vehicles        int           `json:"vehicles" mapstructure:"vehicles"`
	Workers         int           `json:"workers" mapstructure:"workers"`
	Seed            uint64        `json:"seed" mapstructure:"seed"`
	Ticks           uint64        `json:"ticks" mapstructure:"ticks"`
	TickInterval    time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	BufferCapacity  int           `json:"bufferCapacity" mapstructure:"bufferCapacity"`
	MaxBufferLength int           `json:"maxBufferLength" mapstructure:"maxBufferLength"`
}

// MapConfig selects the road map source
type MapConfig struct {
	// Source is "geojson" or "db".
	Source     string  `json:"source" mapstructure:"source"`
	Name       string  `json:"name" mapstructure:"name"`
	Path       string  `json:"path" mapstructure:"path"`
	Geographic bool    `json:"geographic" mapstructure:"geographic"`
	OriginLon  float64 `json:"originLon" mapstructure:"originLon"`
	OriginLat  float64 `json:"originLat" mapstructure:"originLat"`
	Spacing    float64 `json:"spacing" mapstructure:"spacing"`
	// SaveToDB stores a GeoJSON map in the database after loading it.
	SaveToDB bool `json:"saveToDb" mapstructure:"saveToDb"`
}

// DBConfig holds map database settings
type DBConfig struct {
	Driver   string `json:"driver" mapstructure:"driver"`
	Path     string `json:"path" mapstructure:"path"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// DebugConfig holds debug drawing settings
type DebugConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
	// Vehicles is how many slots, from slot 0, get their path drawn each tick.
	Vehicles int `json:"vehicles" mapstructure:"vehicles"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// MonitorConfig holds status reporting settings
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
}

// GraylogConfig holds GELF shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("stage.vehicles", 50)
	viper.SetDefault("stage.workers", 4)
	viper.SetDefault("stage.seed", 1)
	viper.SetDefault("stage.ticks", 0)
	viper.SetDefault("stage.tickInterval", "50ms")
	viper.SetDefault("stage.bufferCapacity", 64)
	viper.SetDefault("stage.maxBufferLength", 4096)

	viper.SetDefault("map.source", "geojson")
	viper.SetDefault("map.name", "demo")
	viper.SetDefault("map.path", "./maps/demo.geojson")
	viper.SetDefault("map.geographic", false)
	viper.SetDefault("map.originLon", 0.0)
	viper.SetDefault("map.originLat", 0.0)
	viper.SetDefault("map.spacing", 2.0)
	viper.SetDefault("map.saveToDb", false)

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.path", "./maps/maps.db")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "carla")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "carla-metrics")
	viper.SetDefault("influx.bucket", "localization")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "carla-localization")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("debug.enabled", false)
	viper.SetDefault("debug.url", "ws://localhost:8765/debug")
	viper.SetDefault("debug.secret", "")
	viper.SetDefault("debug.vehicles", 1)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.statusFile", "./status.txt")
	viper.SetDefault("monitor.interval", "1s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// BindFlags makes command line flags override config values. Flag names
// are config keys, e.g. --stage.workers.
func BindFlags(flags *pflag.FlagSet) error {
	if err := viper.BindPFlags(flags); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStageConfig returns the pipeline configuration
func GetStageConfig() StageConfig {
	return StageConfig{
		Vehicles:        viper.GetInt("stage.vehicles"),
		Workers:         viper.GetInt("stage.workers"),
		Seed:            viper.GetUint64("stage.seed"),
		Ticks:           viper.GetUint64("stage.ticks"),
		TickInterval:    viper.GetDuration("stage.tickInterval"),
		BufferCapacity:  viper.GetInt("stage.bufferCapacity"),
		MaxBufferLength: viper.GetInt("stage.maxBufferLength"),
	}
}

// GetMapConfig returns the map source configuration
func GetMapConfig() MapConfig {
	return MapConfig{
		Source:     viper.GetString("map.source"),
		Name:       viper.GetString("map.name"),
		Path:       viper.GetString("map.path"),
		Geographic: viper.GetBool("map.geographic"),
		OriginLon:  viper.GetFloat64("map.originLon"),
		OriginLat:  viper.GetFloat64("map.originLat"),
		Spacing:    viper.GetFloat64("map.spacing"),
		SaveToDB:   viper.GetBool("map.saveToDb"),
	}
}

// GetDBConfig returns the map database configuration
func GetDBConfig() DBConfig {
	return DBConfig{
		Driver:   viper.GetString("db.driver"),
		Path:     viper.GetString("db.path"),
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetDebugConfig returns the debug drawing configuration
func GetDebugConfig() DebugConfig {
	return DebugConfig{
		Enabled:  viper.GetBool("debug.enabled"),
		URL:      viper.GetString("debug.url"),
		Secret:   viper.GetString("debug.secret"),
		Vehicles: viper.GetInt("debug.vehicles"),
	}
}

// GetInfluxConfig returns the InfluxDB configuration
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetMonitorConfig returns the status reporting configuration
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		StatusFile: viper.GetString("monitor.statusFile"),
		Interval:   viper.GetDuration("monitor.interval"),
	}
}

// GetGraylogConfig returns the GELF shipping configuration
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
