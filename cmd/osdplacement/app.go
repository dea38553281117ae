package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jrife/osdplacement/command"
	"github.com/jrife/osdplacement/command/xtfsutil"
	"github.com/jrife/osdplacement/config"
	"github.com/jrife/osdplacement/layout"
	"github.com/jrife/osdplacement/manager"
	"github.com/jrife/osdplacement/placement"
	"github.com/jrife/osdplacement/realizer"
	"github.com/jrife/osdplacement/storage/kv"
	"github.com/jrife/osdplacement/storage/kv/plugins"
	"github.com/jrife/osdplacement/storage/snapshot"
	"github.com/jrife/osdplacement/utils/log"
	"go.uber.org/zap"
)

// app holds everything a command needs for one managed folder
type app struct {
	config    config.Config
	logger    *zap.Logger
	rootStore kv.RootStore
	runner    *command.Runner
	renderer  *xtfsutil.Renderer
	walker    *layout.Walker
	manager   *manager.Manager
	metrics   *realizer.Metrics
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

// openApp loads the configuration, opens the snapshot store and
// synchronizes the configured OSDs into the distribution
func openApp(ctx context.Context) (*app, context.Context, error) {
	defaultLogger, err := newLogger()

	if err != nil {
		return nil, ctx, fmt.Errorf("could not create logger: %w", err)
	}

	logger, ctx := log.LoggerFromContext(ctx, defaultLogger)
	cfg, err := config.Load(configPath)

	if err != nil {
		return nil, ctx, err
	}

	seed := cfg.Seed

	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	logger = logger.With(zap.String("volume", cfg.Volume), zap.String("name", cfg.Name))
	rootStore, err := plugins.Plugin(config.StoreDriver).NewRootStore(cfg.StoreOptions())

	if err != nil {
		return nil, ctx, fmt.Errorf("could not open store %s: %w", cfg.StorePath, err)
	}

	snapshots, err := snapshot.New(rootStore.Store([]byte(cfg.Volume)), snapshot.WithLogger(logger))

	if err != nil {
		rootStore.Close()

		return nil, ctx, err
	}

	application := &app{
		config:    cfg,
		logger:    logger,
		rootStore: rootStore,
		runner:    command.NewRunner(command.WithTimeout(cfg.CommandTimeout), command.WithLogger(logger)),
		renderer:  xtfsutil.NewRenderer(xtfsutil.WithBinary(cfg.Xtfsutil)),
		metrics:   realizer.NewMetrics(),
	}

	application.walker, err = layout.New(cfg.ManagedFolder, cfg.MountPoint, cfg.Volume, application.runner,
		layout.WithLogger(logger),
		layout.WithRenderer(application.renderer),
	)

	if err != nil {
		application.Close()

		return nil, ctx, err
	}

	distribution := placement.New(placement.WithSeed(seed), placement.WithLogger(logger))
	realize, err := realizer.New(application.walker, distribution, application.runner, cfg.Realizer,
		realizer.WithLogger(logger),
		realizer.WithRand(rand.New(rand.NewSource(seed))),
		realizer.WithRenderer(application.renderer),
		realizer.WithMetrics(application.metrics),
	)

	if err != nil {
		application.Close()

		return nil, ctx, err
	}

	managerOpts := []manager.Option{
		manager.WithName(cfg.Name),
		manager.WithLogger(logger),
		manager.WithRealizer(realize),
	}

	if cfg.SelectionPolicy {
		managerOpts = append(managerOpts, manager.WithSelectionPolicy(application.runner, application.renderer, cfg.MountPoint))
	}

	application.manager, err = manager.Open(distribution, snapshots, managerOpts...)

	if err != nil {
		application.Close()

		return nil, ctx, err
	}

	if err := application.manager.SyncOSDs(cfg.UUIDs(), cfg.Capacities(), cfg.Bandwidths()); err != nil {
		application.Close()

		return nil, ctx, fmt.Errorf("osds in %s do not match the saved distribution: %w", configPath, err)
	}

	return application, ctx, nil
}

// Close closes the snapshot store
func (app *app) Close() {
	if err := app.rootStore.Close(); err != nil {
		app.logger.Warn("could not close store", zap.Error(err))
	}

	app.logger.Sync()
}
