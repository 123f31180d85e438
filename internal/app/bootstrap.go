package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"stagehand/internal/config"
	"stagehand/internal/syncer"
	"stagehand/pkg/logging"
)

// Application bootstraps and runs the stagehand controller.
//
// Bootstrap follows a two-phase pattern:
//  1. NewApplication: load configuration, initialize logging, wire services
//  2. Run: start the control loop and block until shutdown
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes a new application instance.
// It configures logging, loads the stagehand configuration and wires all
// controller services. Nothing is started until Run.
func NewApplication(cfg *Config) (*Application, error) {
	logLevel := logging.LevelInfo
	if cfg.Debug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logLevel, os.Stdout)

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	shCfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	cfg.StagehandConfig = &shCfg

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Run starts the controller and blocks until the context is cancelled or a
// termination signal arrives, then shuts everything down in order: change
// detection and workers first, then the sync transport and the bus.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := a.services

	if err := s.Manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconcile manager: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		syncer.LocalTransport(gctx, s.Tracker)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Bootstrap", "Shutting down")
		if err := s.Manager.Stop(); err != nil {
			logging.Warn("Bootstrap", "Error stopping reconcile manager: %v", err)
		}
		s.Tracker.Close()
		s.Bus.Close()
		return s.Client.Close()
	})

	return g.Wait()
}
