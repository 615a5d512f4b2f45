package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/rconbridge/internal/api"
	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/db"
	"github.com/energizer-project/rconbridge/internal/events"
	"github.com/energizer-project/rconbridge/internal/health"
	"github.com/energizer-project/rconbridge/internal/notify"
	"github.com/energizer-project/rconbridge/internal/scheduler"
	"github.com/energizer-project/rconbridge/internal/server"
	"github.com/energizer-project/rconbridge/internal/telemetry"
	"github.com/energizer-project/rconbridge/internal/util"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway: REST API, health checks, scheduler, history and MQTT",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	log.Info().
		Str("version", util.Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting rconbridge")

	if cfg.IsFirstRun() {
		log.Warn().Msgf("no servers configured, run '%s init' or add one through the API", util.AppName)
	}
	if err := reportValidation(cfg); err != nil {
		return err
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	database, history, tokens, err := openStorage(cfg, eventBus)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	mgr := server.NewManager(cfg, eventBus)
	apiServer := api.NewServer(cfg, eventBus, mgr, history, tokens)
	healthMgr := health.NewManager(cfg, eventBus, mgr)
	sched := scheduler.NewScheduler(cfg, mgr, history)

	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetApplicationData().MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	if _, err := notify.NewNotifier(cfg, eventBus); err == nil {
		log.Info().Msg("webhook notifications enabled")
	} else if !errors.Is(err, notify.ErrDisabled) {
		log.Warn().Err(err).Msg("failed to initialize webhook notifications")
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.GetApplicationData().API.Addr()).Msg("starting REST API server")
		if err := apiServer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	// Closes every session through the manager's shutdown handler.
	if err := eventBus.EmitSync(shutdownCtx, events.Event{Type: events.EventShutdown, Source: "main"}); err != nil {
		log.Warn().Err(err).Msg("shutdown handler failed")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-shutdownCtx.Done():
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	eventBus.Stop()
	log.Info().Msg("rconbridge stopped")
	return runErr
}

// openStorage opens the SQLite file shared by the command history and the
// API tokens. It returns nils when no database file is configured.
func openStorage(cfg *config.Config, bus *events.EventBus) (*db.Database, *db.HistoryDatabase, *db.TokensDatabase, error) {
	appData := cfg.GetApplicationData()
	if appData.History.DatabaseFile == "" {
		if !appData.Security.AuthDisabled {
			return nil, nil, nil, errors.New("history.database_file is required to store API tokens")
		}
		return nil, nil, nil, nil
	}

	database, err := db.NewDatabase(appData.History.DatabaseFile)
	if err != nil {
		return nil, nil, nil, err
	}

	tokens, err := db.NewTokensDatabase(database)
	if err != nil {
		database.Close()
		return nil, nil, nil, err
	}

	var history *db.HistoryDatabase
	if appData.History.Enabled {
		history, err = db.NewHistoryDatabase(database)
		if err != nil {
			database.Close()
			return nil, nil, nil, err
		}
		history.Attach(bus)
	}

	return database, history, tokens, nil
}
