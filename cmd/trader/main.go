package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"oms/internal/api"
	"oms/internal/bus"
	"oms/internal/obs"
	"oms/internal/og"
	"oms/internal/ops"
	"oms/internal/order"
	"oms/internal/risk"
	"oms/internal/schema"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML or JSON config")
	envFile := flag.String("env", ".env", "Path to .env file")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Risk limit reload interval (0=disable)")
	flag.Parse()

	if err := ops.LoadEnv(*envFile); err != nil {
		log.Fatalf("env load failed: %v", err)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Profile.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profile.AppName,
			ServerAddress:   cfg.Profile.ServerAddress,
			Tags:            cfg.Profile.Tags,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, *configPath, *configReload); err != nil {
		log.Fatalf("trader failed: %v", err)
	}
}

func run(ctx context.Context, cfg ops.Config, configPath string, reload time.Duration) error {
	metrics := obs.NewMetrics()

	records, closeStore, err := ops.OpenStore(ctx, cfg.Store, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logs.Errorf("trader: close store, err: %+v", err)
		}
	}()

	channel, err := bus.New(cfg.Bus, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := channel.Close(); err != nil {
			logs.Errorf("trader: close channel, err: %+v", err)
		}
	}()

	gate, err := risk.NewGate(cfg.Risk,
		risk.WithMetrics(metrics),
		risk.WithResetHook(func(snap risk.Snapshot) {
			if err := channel.Publish(ctx, schema.TopicRiskReset, snap.Payload()); err != nil {
				logs.Errorf("trader: publish %s, err: %+v", schema.TopicRiskReset, err)
			}
		}),
	)
	if err != nil {
		return err
	}
	if _, err := gate.Recover(ctx, records, time.Now()); err != nil {
		return err
	}
	go gate.Run(ctx)

	states, err := og.NewStateMachine(cfg.Order.MaxRetries, og.WithMetrics(metrics))
	if err != nil {
		return err
	}

	venue, _, err := ops.BuildVenue(cfg.Venue)
	if err != nil {
		return err
	}

	use, err := order.NewUsecase(cfg.Order.Config, order.Dependencies{
		Channel: channel,
		Risk:    gate,
		States:  states,
		Venue:   venue,
		Store:   records,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	if err := use.Start(ctx); err != nil {
		return err
	}
	defer use.Stop()

	server := api.NewServer(cfg.HTTP.Addr, use, gate, metrics)
	server.Start()

	if configPath != "" && reload > 0 {
		go watchConfig(ctx, configPath, reload, func(next ops.Config) {
			if err := gate.UpdateConfig(next.Risk); err != nil {
				logs.Warnf("trader: risk reload rejected, err: %+v", err)
			}
		})
	}

	<-sys.Shutdown()
	logs.Info("trader: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logs.Errorf("trader: api shutdown, err: %+v", err)
	}
	return nil
}

func loadConfig(path string) (ops.Config, error) {
	if path == "" {
		cfg := ops.Default()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return ops.Load(path)
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Config)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Warnf("trader: config stat failed, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			next, err := ops.Load(path)
			if err != nil {
				logs.Warnf("trader: config reload failed, err: %+v", err)
				continue
			}
			update(next)
			lastMod = info.ModTime()
			logs.Infof("trader: config reloaded, %s", path)
		}
	}
}
