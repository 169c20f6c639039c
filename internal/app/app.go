package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/specialistvlad/dungeonjob/internal/config"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/node"
	"github.com/specialistvlad/dungeonjob/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	pipeline *config.Pipeline
	decoder  config.Decoder

	// agent overrides the local executor. Set only in tests.
	agent node.Agent
	now   func() time.Time
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Misconfiguration panics; the entrypoint recovers and reports it.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	pipeline, decoder, err := loader.Load(ctx, cfg.PipelinePath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Pipeline loaded.", "path", cfg.PipelinePath)

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	if err := reg.ValidateRegistry(ctx, pipeline); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		pipeline: pipeline,
		decoder:  decoder,
		now:      time.Now,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Pipeline returns the loaded pipeline definition.
func (a *App) Pipeline() *config.Pipeline {
	return a.pipeline
}

// UseAgent replaces the local executor with agent. This is primarily for
// testing, where no real processes should be spawned.
func (a *App) UseAgent(agent node.Agent) {
	a.agent = agent
}
