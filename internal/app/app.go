package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/history"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/config"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/plugin"
	"github.com/GriffinCanCode/probehost/internal/runtime"
	"github.com/GriffinCanCode/probehost/internal/runtime/bridge"
	"github.com/GriffinCanCode/probehost/internal/settings"
	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

// Options customizes New.
type Options struct {
	// Emitter receives batch events. nil discards them.
	Emitter batch.Emitter

	// Metrics defaults to a fresh collector on its own registry.
	Metrics *monitoring.Metrics

	// Keychain overrides the OS keychain.
	Keychain bridge.Keychain
}

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	Layout   paths.Layout
	Registry *plugin.Registry
	Settings *settings.Store
	History  *history.History
	Host     *runtime.Host
	Batches  *batch.Coordinator
}

// New builds the components. Plugins are not discovered until LoadPlugins.
func New(cfg *config.Config, logger *logging.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	layout := cfg.Layout()

	host := runtime.NewHost(runtime.Options{
		Layout:         layout,
		Version:        cfg.Runtime.Version,
		DefaultTimeout: cfg.RunTimeout(),
		Bridge: bridge.Options{
			HTTP: bridge.HTTPOptions{
				DefaultTimeout: time.Duration(cfg.HTTP.DefaultTimeoutMS) * time.Millisecond,
				MaxTimeout:     time.Duration(cfg.HTTP.MaxTimeoutMS) * time.Millisecond,
				RateLimit:      cfg.HTTP.RateLimitRPS,
				MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
				Retries:        cfg.HTTP.Retries,
				UserAgent:      cfg.HTTP.UserAgent,
			},
			SQLiteTimeout: time.Duration(cfg.Storage.BusyTimeoutMS) * time.Millisecond,
			Keychain:      opts.Keychain,
		},
	}, logger.Named("runtime"), metrics)

	registry := plugin.NewRegistry(logger.Named("plugins"), metrics)
	store := settings.NewStore(layout.SettingsPath())
	hist := history.New(cfg.Runtime.HistorySize)

	batches := batch.New(host, registry, store, hist, opts.Emitter, batch.Options{
		MaxConcurrency: cfg.Runtime.MaxConcurrency,
		Timeout:        cfg.RunTimeout(),
	}, logger.Named("batch"), metrics)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Layout:   layout,
		Registry: registry,
		Settings: store,
		History:  hist,
		Host:     host,
		Batches:  batches,
	}, nil
}

// LoadPlugins discovers plugins from the configured roots.
func (a *App) LoadPlugins(ctx context.Context) error {
	if err := a.Registry.Load(ctx, a.Config.Plugins.Dirs, a.Config.Plugins.Ignore); err != nil {
		return fmt.Errorf("load plugins: %w", err)
	}
	return nil
}

// EnabledSettings returns the stored settings normalized against the
// registry.
func (a *App) EnabledSettings() (settings.PluginSettings, error) {
	s, err := a.Settings.Load()
	if err != nil {
		return settings.Default(), err
	}
	return settings.Normalize(s, a.Registry.IDs()), nil
}

// Close waits for background batches and flushes the logger.
func (a *App) Close() {
	a.Batches.Wait()
	if err := a.Logger.Sync(); err != nil {
		a.Logger.Debug("logger sync failed", zap.Error(err))
	}
}
