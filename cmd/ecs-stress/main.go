package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/profile"
	"github.com/plus3/ecsrt/ecs"
	"github.com/plus3/ecsrt/internal/logging"
	"go.uber.org/zap"
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 10000, "The number of mortal entities to keep alive.")
	configPath := flag.String("config", "", "Optional YAML runtime configuration.")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file.")
	profileMode := flag.String("profile", "", "Write a profile to the working directory: cpu or mem.")
	gcPauseMetrics := flag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	flag.Parse()

	cfg := ecs.DefaultConfig()
	if *configPath != "" {
		loaded, err := ecs.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		logger.Fatal("unknown profile mode", zap.String("profile", *profileMode))
	}

	if err := run(logger, cfg, *duration, *entityCount, *gcPauseMetrics); err != nil {
		logger.Error("stress test failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg *ecs.Config, duration time.Duration, entityCount int, gcPauseMetrics bool) error {
	logger.Info("starting ECS stress test",
		zap.Duration("duration", duration),
		zap.Int("entities", entityCount),
		zap.Strings("phases", cfg.Phases))

	// 1. Setup registry, runtime and the stress bundle
	counters := &Counters{}
	rt := ecs.NewRuntime(ecs.NewComponentRegistry(), ecs.WithLogger(logger), ecs.WithConfig(cfg))
	bundle, err := newWorldBundle(entityCount, counters)
	if err != nil {
		return fmt.Errorf("build bundle: %w", err)
	}
	if err := rt.Install(bundle); err != nil {
		return err
	}
	if err := watchMortals(rt, counters); err != nil {
		return err
	}
	rt.AddPostUpdateHook(func(*ecs.Runtime, float64) error {
		counters.Frames++
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	if err := rt.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	// 2. Populate storage with initial entities
	logger.Info("populating storage", zap.Int("entities", entityCount))
	for i := 0; i < entityCount; i++ {
		spawnRandomEntity(rt.Commands())
	}
	if err := rt.Commands().Flush(); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	counters.Spawned += int64(entityCount)

	// 3. Run the simulation loop
	report := &Report{
		Duration:       duration,
		Entities:       entityCount,
		Components:     len(rt.Registry().Names()),
		Systems:        len(rt.Scheduler().Labels()),
		Phases:         rt.Scheduler().Phases(),
		GCPauseMetrics: gcPauseMetrics,
		UpdateTime: Stats{
			Samples: make([]time.Duration, 0),
		},
	}

	runtime.ReadMemStats(&report.MemStatsStart)

	logger.Info("running simulation", zap.Duration("duration", duration))
	startTime := time.Now()
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			if err := rt.Update(deltaTime.Seconds()); err != nil {
				return fmt.Errorf("update %d: %w", counters.Frames, err)
			}
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
		}
	}

	report.TotalTime = time.Since(startTime)
	report.TotalUpdates = counters.Frames
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)
	report.Counters = *counters
	report.Storage = rt.Storage().CollectStats()
	report.Scheduler = rt.Stats()

	logger.Info("simulation finished", zap.Int64("updates", counters.Frames))

	// 4. Generate report to console
	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	fmt.Println("--- End of Report ---")
	return nil
}
