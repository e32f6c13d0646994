package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/urishab/carla/internal/cache"
	"github.com/urishab/carla/internal/config"
	"github.com/urishab/carla/internal/debugdraw"
	"github.com/urishab/carla/internal/influx"
	"github.com/urishab/carla/internal/localization"
	"github.com/urishab/carla/internal/logging"
	"github.com/urishab/carla/internal/messenger"
	"github.com/urishab/carla/internal/monitor"
	intOtel "github.com/urishab/carla/internal/otel"
	"github.com/urishab/carla/internal/road"
	"github.com/urishab/carla/internal/session"
	"github.com/urishab/carla/internal/sim"
	"github.com/urishab/carla/internal/traffic"
	"github.com/urishab/carla/internal/worker"
	"github.com/urishab/carla/pkg/streaming"
)

const appName = "carla_localization"

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime = time.Now()
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if Logger != nil {
			Logger.Error("Exiting", "error", err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFlags() (*pflag.FlagSet, *string) {
	flags := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	configDir := flags.String("config", ".", "directory holding "+config.FileName)
	flags.String("logLevel", "info", "log level")
	flags.Int("stage.vehicles", 50, "vehicles to spawn")
	flags.Int("stage.workers", 4, "compute workers")
	flags.Uint64("stage.seed", 1, "seed for spawning and fork choice")
	flags.Uint64("stage.ticks", 0, "ticks to run, 0 for no limit")
	flags.Duration("stage.tickInterval", 50*time.Millisecond, "minimum time between ticks")
	flags.String("map.source", "geojson", "map source: geojson or db")
	flags.String("map.name", "demo", "map name")
	flags.String("map.path", "./maps/demo.geojson", "GeoJSON map file")
	flags.Bool("debug.enabled", false, "stream path points to a debug viewer")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [run|savemap]\n", appName)
		flags.PrintDefaults()
	}
	return flags, configDir
}

func run(args []string) error {
	flags, configDir := newFlags()
	if err := flags.Parse(args); err != nil {
		return err
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.BindFlags(flags); err != nil {
		return err
	}
	if err := config.Load(*configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", *configDir)
	}

	command := "run"
	if flags.NArg() > 0 {
		command = flags.Arg(0)
	}

	sess := session.NewContext()
	logFile, err := setupLogging(sess)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	defer shutdownTelemetry()

	switch command {
	case "run":
		return runPipeline(sess)
	case "savemap":
		mapCfg := config.GetMapConfig()
		mapCfg.Source = "geojson"
		mapCfg.SaveToDB = true
		_, err := loadMap(mapCfg, config.GetDBConfig())
		return err
	default:
		flags.Usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

// setupLogging opens the run's log file and re-initialises logging with the
// file, OTel, GELF and session context.
func setupLogging(sess *session.Context) (*os.File, error) {
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}

	logFilePath := logging.LogFilePath(logsDir, appName, SessionStartTime)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
		logFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var otelWriter io.Writer
		if logFile != nil {
			otelWriter = logFile
		}
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    otelWriter,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
			RunAttributes: []attribute.KeyValue{
				attribute.String("carla.map", config.GetMapConfig().Name),
				attribute.Int64("carla.seed", int64(config.GetStageConfig().Seed)),
			},
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	opts := []logging.Option{logging.WithContext(sess.Attrs)}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address)
		if err != nil {
			Logger.Error("Failed to create GELF writer", "error", err, "address", gl.Address)
		} else {
			opts = append(opts, logging.WithGELF(w))
		}
	}

	var out io.Writer = os.Stdout
	if logFile != nil {
		out = io.MultiWriter(os.Stdout, logFile)
	}
	SlogManager.Setup(out, viper.GetString("logLevel"), otelLogProvider, opts...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logFilePath)

	return logFile, nil
}

func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "log flush failed:", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "otel shutdown failed:", err)
		}
	}
}

// links are the three downstream messengers.
type links struct {
	planner      *messenger.Messenger[localization.PlannerFrame]
	collision    *messenger.Messenger[localization.CollisionFrame]
	trafficLight *messenger.Messenger[localization.TrafficLightFrame]
}

func (l links) stop() {
	l.planner.Stop()
	l.collision.Stop()
	l.trafficLight.Stop()
}

func runPipeline(sess *session.Context) error {
	stageCfg := config.GetStageConfig()

	m, err := loadMap(config.GetMapConfig(), config.GetDBConfig())
	if err != nil {
		return fmt.Errorf("loading map: %w", err)
	}
	Logger.Info("Map loaded", "map", m.Name(), "waypoints", m.Len(), "deadEnds", len(m.DeadEnds()))

	vehicles, err := sim.Spawn(m, stageCfg.Vehicles, sim.SpawnOptions{Seed: stageCfg.Seed})
	if err != nil {
		return fmt.Errorf("spawning vehicles: %w", err)
	}
	sess.SetMap(m.Name(), len(vehicles))
	Logger.Info("Vehicles spawned", "count", len(vehicles))

	l := links{
		planner:      messenger.New[localization.PlannerFrame](),
		collision:    messenger.New[localization.CollisionFrame](),
		trafficLight: messenger.New[localization.TrafficLightFrame](),
	}

	distributor := traffic.NewDistributor(cache.NewLanePositions(), traffic.KeepLane{})

	deps := localization.Dependencies{
		Roster:       sim.Roster(vehicles),
		Graph:        m,
		Tracker:      distributor,
		LaneChanger:  distributor,
		Planner:      l.planner,
		Collision:    l.collision,
		TrafficLight: l.trafficLight,
		Logger:       Logger.With("component", "localization"),
	}

	renderer := connectRenderer(m, len(vehicles), stageCfg.Seed)
	if renderer != nil {
		deps.Renderer = renderer
		defer func() {
			if err := renderer.EndSession(); err != nil {
				Logger.Debug("Debug viewer did not ack end of session", "error", err)
			}
			renderer.Close()
		}()
	}

	stage, err := localization.New(deps, localization.Options{
		Seed:            stageCfg.Seed,
		BufferCapacity:  stageCfg.BufferCapacity,
		MaxBufferLength: stageCfg.MaxBufferLength,
	})
	if err != nil {
		return fmt.Errorf("creating localization stage: %w", err)
	}

	influxManager := connectInflux()
	if influxManager != nil {
		defer influxManager.Close()
	}

	wrapped := &instrumentedStage{
		Stage:     stage,
		renderer:  renderer,
		drawSlots: min(config.GetDebugConfig().Vehicles, len(vehicles)),
		influx:    influxManager,
		session:   sess,
	}

	manager, err := worker.NewManager(worker.Dependencies{
		Stage:    wrapped,
		Vehicles: len(vehicles),
		Workers:  stageCfg.Workers,
		Logger:   Logger.With("component", "worker"),
		Session:  sess,
	})
	if err != nil {
		return err
	}

	step := stageCfg.TickInterval
	if step <= 0 {
		step = 50 * time.Millisecond
	}
	world := sim.NewWorld(vehicles, step)
	var consumers sync.WaitGroup
	startConsumer(&consumers, sim.NewConsumer(l.planner, world.Plan))
	startConsumer(&consumers, sim.NewConsumer(l.collision, world.Collide))
	startConsumer(&consumers, sim.NewConsumer(l.trafficLight, world.Signal))

	var monitorService *monitor.Service
	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		monDeps := monitor.Dependencies{
			Logger:     Logger.With("component", "monitor"),
			Session:    sess,
			Stage:      stage,
			Manager:    manager,
			StatusFile: monCfg.StatusFile,
			Interval:   monCfg.Interval,
		}
		if influxManager != nil {
			monDeps.Influx = influxManager
		}
		monitorService = monitor.NewService(monDeps)
		if err := monitorService.Start(); err != nil {
			Logger.Error("Failed to start status monitor", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	Logger.Info("Pipeline running",
		"workers", len(manager.Partitions()),
		"ticks", stageCfg.Ticks,
		"tickInterval", stageCfg.TickInterval,
	)
	runErr := manager.Run(ctx, stageCfg.Ticks, stageCfg.TickInterval)

	if monitorService != nil {
		monitorService.Stop()
	}
	l.stop()
	consumers.Wait()

	stats := stage.Stats()
	ws := world.Stats()
	Logger.Info("Pipeline stopped",
		"ticks", stats.Ticks,
		"faults", stats.Faults,
		"plannerSent", stats.Planner.Sent,
		"collisionSent", stats.Collision.Sent,
		"collisionSkipped", stats.Collision.Skipped,
		"trafficLightSent", stats.TrafficLight.Sent,
		"trafficLightSkipped", stats.TrafficLight.Skipped,
		"pathPointsRead", ws.PathPoints,
		"junctionAhead", ws.JunctionAhead,
		"lanesOccupied", distributor.Lanes(),
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func startConsumer[T any](wg *sync.WaitGroup, c *sim.Consumer[T]) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run()
	}()
}

// connectRenderer returns nil when debug drawing is disabled or the viewer
// cannot be reached.
func connectRenderer(m *road.Map, vehicles int, seed uint64) *debugdraw.Renderer {
	debugCfg := config.GetDebugConfig()
	if !debugCfg.Enabled {
		return nil
	}
	r := debugdraw.New(debugdraw.Config{URL: debugCfg.URL, Secret: debugCfg.Secret}, Logger)
	if err := r.Connect(); err != nil {
		Logger.Warn("Debug viewer unavailable, drawing disabled", "error", err, "url", debugCfg.URL)
		return nil
	}
	if err := r.StartSession(streaming.StartSessionPayload{Map: m.Name(), Vehicles: vehicles, Seed: seed}); err != nil {
		Logger.Warn("Debug viewer did not ack session start", "error", err)
	}
	Logger.Info("Debug viewer connected", "url", debugCfg.URL)
	return r
}

// connectInflux returns nil when influx is disabled or fails to set up.
func connectInflux() *influx.Manager {
	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		return nil
	}
	zl := zerolog.New(os.Stdout).With().Timestamp().Str("component", "influx").Logger()
	backupPath := logging.LogFilePath(viper.GetString("logsDir"), appName+"_influx", SessionStartTime) + ".gz"
	mgr := influx.NewManager(influxCfg, zl, backupPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Connect(ctx); err != nil {
		Logger.Error("Failed to set up InfluxDB", "error", err)
		mgr.Close()
		return nil
	}
	return mgr
}
