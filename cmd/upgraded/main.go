package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nwops/upgraded/internal/audit"
	"github.com/nwops/upgraded/internal/automation"
	"github.com/nwops/upgraded/internal/gate"
	"github.com/nwops/upgraded/internal/inventory"
	"github.com/nwops/upgraded/internal/orchestrator"
	"github.com/nwops/upgraded/internal/policy"
	"github.com/nwops/upgraded/internal/server"
	"github.com/nwops/upgraded/internal/store"
	"github.com/nwops/upgraded/internal/telemetry"
	"github.com/nwops/upgraded/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("upgraded starting", zap.String("version", version.Short()))

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Storage and repositories.
	db, err := store.New(cfg.GetString("store.path"))
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx, "inventory", inventory.Migrations); err != nil {
		logger.Fatal("inventory migrations failed", zap.Error(err))
	}
	if err := db.Migrate(ctx, "audit", audit.Migrations); err != nil {
		logger.Fatal("audit migrations failed", zap.Error(err))
	}

	devices := inventory.NewSQLiteDeviceRepository(db.DB())
	policies := inventory.NewSQLitePolicyRepository(db.DB())
	recorder := audit.NewSQLiteRecorder(db.DB(), nil)

	// Telemetry.
	influxClient := influxdb2.NewClient(cfg.GetString("influx.url"), cfg.GetString("influx.token"))
	defer influxClient.Close()
	reader := telemetry.NewInfluxReader(influxClient, cfg.GetString("influx.org"), cfg.GetString("influx.bucket"))
	health := telemetry.NewHealthAggregator(reader, cfg.GetDuration("telemetry.timeout"), logger.Named("telemetry"), nil)

	// Policy evaluation.
	defaults := policy.DefaultsFromConfig(cfg)
	resolver := policy.NewResolver(policies, defaults)
	window := policy.NewWindowChecker(policy.WindowFromConfig(cfg), nil)
	overlay, err := policy.LoadVendorOverlay(cfg.GetString("policy.vendor_overlay"))
	if err != nil {
		logger.Fatal("failed to load vendor overlay", zap.Error(err))
	}
	prechecks := policy.NewPreCheckGenerator(cfg.GetStringSlice("policy.pre_checks"), overlay)
	evaluator := policy.NewEvaluator(window, prechecks, logger.Named("policy"), nil)

	// Safety gate.
	gateCfg := gate.Config{
		Enabled: cfg.GetBool("gate.enabled"),
		Model:   cfg.GetString("gate.model"),
		Timeout: cfg.GetDuration("gate.timeout"),
	}
	clientCfg := openai.DefaultConfig(cfg.GetString("gate.api_key"))
	if baseURL := cfg.GetString("gate.base_url"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	safetyGate := gate.New(openai.NewClientWithConfig(clientCfg), gateCfg, logger.Named("gate"), nil)

	// Automation backend.
	runner, err := automation.NewAnsibleRunner(cfg.GetString("ansible.dir"), cfg.GetDuration("ansible.timeout"), logger.Named("ansible"))
	if err != nil {
		logger.Fatal("ansible backend unavailable", zap.Error(err))
	}

	orch := orchestrator.New(devices, resolver, health, evaluator, safetyGate, runner, recorder, defaults.Window, logger.Named("orchestrator"))

	addr := cfg.GetString("server.host") + ":" + cfg.GetString("server.port")
	srv := server.New(addr, orch, devices, recorder, logger.Named("server"))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("upgraded ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("upgraded stopped")
}
