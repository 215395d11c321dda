// Command server is the JVC Connected Cam engine's entry point. It wires
// every component in this order: config store, logging, device discovery
// and the engine supervisor, tally router, the read-only command-port
// server, UMD listener, the control API, and the health/metrics server —
// then blocks until a termination signal or the first component error,
// cancels one shared context that stops every component at once, and
// waits up to 10 seconds for them to return.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvconnected/camera-engine/internal/api"
	"github.com/jvconnected/camera-engine/internal/cmdport"
	"github.com/jvconnected/camera-engine/internal/config"
	"github.com/jvconnected/camera-engine/internal/discovery"
	"github.com/jvconnected/camera-engine/internal/engine"
	"github.com/jvconnected/camera-engine/internal/health"
	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/security"
	"github.com/jvconnected/camera-engine/internal/tally"
	"github.com/jvconnected/camera-engine/internal/umd"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "camera-engine",
		Short:         "Broadcast camera control and tally engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/engine.yaml", "path to the engine's YAML config document")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	bootLogger := logging.GetLogger("config")
	cm, err := config.NewConfigManager(configPath, bootLogger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := cm.Snapshot()

	_ = logging.SetupLogging(&logging.LoggingConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FileEnabled:    cfg.Logging.FileEnabled,
		FilePath:       cfg.Logging.FilePath,
		MaxFileSize:    cfg.Logging.MaxFileSize,
		BackupCount:    cfg.Logging.BackupCount,
		ConsoleEnabled: cfg.Logging.ConsoleEnabled,
	})

	logger := logging.GetLogger("engine")
	logger.Info("starting camera engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := discovery.NewScanner(cfg.Discovery.ServiceType, cfg.Discovery.Domain, 2*time.Second, logging.GetLogger("discovery"))

	sup := engine.New(engine.Options{ConfigManager: cm, Scanner: scanner}, logging.GetLogger("engine-supervisor"))

	router := tally.NewRouter(cm, sup.ModelByIndex, logging.GetLogger("tally"))

	cmdSrv := cmdport.NewServer(cfg.CommandPort.Host, cfg.CommandPort.Port, logging.GetLogger("cmdport"))
	router.ObserveWrites(func(deviceIndex int, param string, on bool) {
		cmdSrv.Update(deviceIndex, param, on)
	})

	umdListener := umd.NewListener(cfg.UMD.Host, cfg.UMD.Port, logging.GetLogger("umd"))

	var jwtHandler *security.JWTHandler
	if cfg.API.JWTSecret != "" {
		jwtHandler, err = security.NewJWTHandler(cfg.API.JWTSecret, logging.GetLogger("security"))
		if err != nil {
			return fmt.Errorf("creating JWT handler: %w", err)
		}
	}
	limiter := security.NewClientRateLimiter(cfg.API.RateLimitRPS, logging.GetLogger("security"))

	apiCfg := api.DefaultServerConfig()
	apiCfg.Host = cfg.API.Host
	apiCfg.Port = cfg.API.Port
	apiSrv := api.NewServer(apiCfg, sup, cm, router, jwtHandler, limiter, logging.GetLogger("control-api"))

	healthMonitor := health.NewHealthMonitor("1.0.0")
	healthSrv, err := health.NewHTTPHealthServer(cfg.Health, healthMonitor, logging.GetLogger("health"))
	if err != nil {
		return fmt.Errorf("creating health server: %w", err)
	}

	errCh := make(chan error, 5)
	go func() { errCh <- sup.Run(ctx) }()
	go router.Run(ctx)
	go func() { errCh <- cmdSrv.Start(ctx) }()
	go func() { errCh <- umdListener.Start(ctx, router.OnUMDUpdate) }()
	go func() { errCh <- apiSrv.Start(ctx) }()
	go func() { errCh <- healthSrv.Start(ctx) }()

	healthMonitor.UpdateComponentStatus("engine", health.HealthStatusHealthy, "started", nil)

	logger.Info("camera engine started; all components running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("component failed, shutting down")
		}
	}

	cancel()

	shutdownTimer := time.NewTimer(10 * time.Second)
	defer shutdownTimer.Stop()
	drained := 0
	for drained < 5 {
		select {
		case <-errCh:
			drained++
		case <-shutdownTimer.C:
			logger.Warn("shutdown timeout exceeded, exiting")
			return nil
		}
	}

	logger.Info("camera engine stopped")
	return nil
}
