// Package app wires the compiler pipeline together: configuration,
// logging, the provider client, the artifact store, and the two top-level
// commands (compile and build).
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/towc/aidef-sub001/internal/artifact"
	"github.com/towc/aidef-sub001/internal/config"
	"github.com/towc/aidef-sub001/internal/overlap"
	"github.com/towc/aidef-sub001/internal/provider"
)

// Command selects what Run does.
type Command string

const (
	CommandCompile Command = "compile"
	CommandBuild   Command = "build"
)

// Config holds the invocation-scoped settings assembled by the CLI.
// Zero-valued overrides mean "use the config file / defaults".
type Config struct {
	Command  Command
	SpecPath string // compile only

	ConfigPath     string
	ConfigExplicit bool

	TreeRoot    string // override
	OutputRoot  string // override
	Parallelism int    // override

	LogFormat string
	LogLevel  string
}

// NewConfig validates an invocation config.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandCompile:
		if cfg.SpecPath == "" {
			return nil, errors.New("compile requires a spec path")
		}
	case CommandBuild:
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = config.DefaultFileName
	}
	return &cfg, nil
}

// App encapsulates the application's dependencies and lifecycle. Each
// instance carries its own isolated logger; the global logger is never
// touched.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	model    *config.Model
	provider provider.Provider
	store    *artifact.Store
	registry *overlap.Registry
}

// Option customizes an App, mainly for tests.
type Option func(*App)

// WithProvider replaces the HTTP provider with another implementation.
func WithProvider(p provider.Provider) Option {
	return func(a *App) { a.provider = p }
}

// New constructs a fully initialized App: config file loaded and merged
// with flag overrides, logger built, provider and store ready.
func New(outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	model, err := config.Load(cfg.ConfigPath, cfg.ConfigExplicit)
	if err != nil {
		return nil, err
	}
	applyOverrides(model, cfg)

	app := &App{
		outW:     outW,
		logger:   newLogger(cfg.LogLevel, cfg.LogFormat, outW),
		cfg:      cfg,
		model:    model,
		store:    artifact.NewStore(model.TreeRoot),
		registry: overlap.NewRegistry(),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.provider == nil {
		app.provider = provider.NewHTTP(provider.HTTPOptions{
			Endpoint: model.Provider.Endpoint,
			Timeout:  model.Provider.Timeout,
			Retries:  model.Provider.Retries,
			Headers:  model.Provider.Headers,
		})
	}
	app.logger.Debug("App initialized.",
		"command", cfg.Command, "tree", model.TreeRoot, "endpoint", model.Provider.Endpoint)
	return app, nil
}

// Model returns the merged configuration, primarily for tests.
func (a *App) Model() *config.Model { return a.model }

// Store returns the artifact store, primarily for tests.
func (a *App) Store() *artifact.Store { return a.store }

func applyOverrides(model *config.Model, cfg *Config) {
	if cfg.TreeRoot != "" {
		model.TreeRoot = cfg.TreeRoot
	}
	if cfg.OutputRoot != "" {
		model.Output.Root = cfg.OutputRoot
	}
	if cfg.Parallelism > 0 {
		model.Limits.Parallelism = cfg.Parallelism
	}
}
