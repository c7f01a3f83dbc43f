package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/perfctl/internal/aggregate"
	"codeberg.org/mutker/perfctl/internal/config"
	"codeberg.org/mutker/perfctl/internal/export"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/metrics"
	"codeberg.org/mutker/perfctl/internal/pid"
	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/quality"
	"codeberg.org/mutker/perfctl/internal/strategy"
	"codeberg.org/mutker/perfctl/internal/telemetry"
)

const (
	controlInterval = time.Second
	powerInterval   = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	profiler := profile.New()
	registry := strategy.NewRegistry()

	mgr := quality.NewManager(profiler, registry, quality.Config{
		StabilityPeriod: time.Duration(cfg.StabilityPeriod) * time.Second,
		TransitionScale: 1,
	})
	if err := mgr.Initialize(ctx); err != nil {
		return err
	}
	defer mgr.Destroy()

	ring := metrics.NewRing(cfg.MaxRawPoints)

	aggCfg := aggregate.DefaultConfig()
	aggCfg.Window = time.Duration(cfg.AggregationWindow) * time.Second
	aggCfg.MaxWindows = cfg.MaxCachedWindows
	agg := aggregate.New(aggCfg)
	agg.SetQualitySource(func() aggregate.QualitySection {
		level, changes, degradations, optimizations := mgr.Counters()
		return aggregate.QualitySection{
			Level:         level,
			LevelChanges:  changes,
			Degradations:  degradations,
			Optimizations: optimizations,
		}
	})

	samplerCfg := metrics.DefaultSamplerConfig()
	samplerCfg.Interval = time.Duration(cfg.SampleInterval) * time.Millisecond
	samplerCfg.BatchSize = cfg.BatchSize
	samplerCfg.Realtime = cfg.Realtime
	samplerCfg.GPUPresent = profiler.Profile().GPU != profile.GPUNone
	sampler := metrics.NewSampler(samplerCfg, ring, agg)

	collector, err := telemetry.NewService(telemetry.Config{
		DBPath:       cfg.TelemetryDB,
		BatchSize:    32,
		BatchTimeout: 10,
		Enabled:      cfg.Telemetry,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry")
		}
	}()

	mgr.OnQualityChange(func(ev quality.ChangeEvent) {
		logger.Info().
			Str("old_level", ev.OldLevel.String()).
			Str("new_level", ev.NewLevel.String()).
			Str("reason", ev.Reason).
			Msg("Quality changed")
	})
	mgr.OnOptimizationApplied(func(ev quality.OptimizationEvent) {
		logger.Info().
			Str("optimization", ev.Optimization.ID).
			Str("target", ev.Optimization.Target).
			Msg("Optimization applied")
	})
	mgr.OnOptimizationRemoved(func(ev quality.OptimizationEvent) {
		logger.Info().
			Str("optimization", ev.Optimization.ID).
			Msg("Optimization removed")
	})

	sampler.Start()
	defer sampler.Stop()

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging performance without adjusting quality...")
	}

	loop(ctx, cfg, mgr, profiler, ring, collector)

	if cfg.Report {
		printReport(ring, agg)
	}

	return nil
}

func loop(
	ctx context.Context,
	cfg *config.Config,
	mgr *quality.Manager,
	profiler *profile.Profiler,
	ring *metrics.Ring,
	collector telemetry.Collector,
) {
	controlTicker := time.NewTicker(controlInterval)
	defer controlTicker.Stop()
	powerTicker := time.NewTicker(powerInterval)
	defer powerTicker.Stop()

	battery := profiler.Profile().Power.BatteryLevel

	for {
		select {
		case <-ctx.Done():
			return
		case <-powerTicker.C:
			battery = profiler.RefreshPower(ctx).BatteryLevel
		case <-controlTicker.C:
			fps, memoryMB, ok := recentAverages(ring)
			if !ok {
				continue
			}

			if !cfg.Monitor {
				mgr.UpdateMetrics(fps, memoryMB, battery)
			}

			state := mgr.StateSnapshot()
			logState(cfg, state, fps, memoryMB)

			snapshot := &telemetry.Snapshot{
				Timestamp:     time.Now(),
				FPS:           fps,
				MemoryMB:      memoryMB,
				Level:         state.CurrentLevel.String(),
				TargetLevel:   state.TargetLevel.String(),
				Transitioning: state.IsTransitioning,
				Optimizations: len(state.AppliedOptimizations),
				Strategy:      state.ActiveStrategy,
			}
			if err := collector.Record(ctx, snapshot); err != nil {
				logger.Debug().Err(err).Msg("Failed to record telemetry snapshot")
			}
		}
	}
}

// recentAverages reduces the last control interval of raw samples into
// the fps/memory pair fed to the manager.
func recentAverages(ring *metrics.Ring) (fps, memoryMB float64, ok bool) {
	cutoff := time.Now().Add(-controlInterval)

	var fpsSum, memSum float64
	var fpsN, memN int
	for _, p := range ring.Snapshot() {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		switch p.Type {
		case metrics.MetricFPS:
			fpsSum += p.Value
			fpsN++
		case metrics.MetricMemory:
			memSum += p.Value
			memN++
		case metrics.MetricGPU, metrics.MetricNetwork, metrics.MetricOperation:
		}
	}

	if fpsN == 0 {
		return 0, 0, false
	}
	fps = fpsSum / float64(fpsN)
	if memN > 0 {
		memoryMB = memSum / float64(memN)
	}

	return fps, memoryMB, true
}

func logState(cfg *config.Config, state quality.State, fps, memoryMB float64) {
	if cfg.Debug {
		logger.Debug().
			Float64("fps", fps).
			Float64("memory_mb", memoryMB).
			Str("level", state.CurrentLevel.String()).
			Str("target_level", state.TargetLevel.String()).
			Bool("transitioning", state.IsTransitioning).
			Str("strategy", state.ActiveStrategy).
			Strs("optimizations", state.AppliedOptimizations).
			Msg("")
	} else if cfg.Verbose || cfg.Monitor {
		logger.Info().
			Float64("fps", fps).
			Float64("memory_mb", memoryMB).
			Str("level", state.CurrentLevel.String()).
			Msg("")
	}
}

func printReport(ring *metrics.Ring, agg *aggregate.Aggregator) {
	agg.Flush()

	result := export.Export(ring.Snapshot(), agg.Aggregates(), export.Options{Format: export.FormatSummary})
	if !result.Success {
		logger.Error().Str("error", result.Error).Msg("Failed to generate report")
		return
	}

	fmt.Println(string(result.Data))
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
