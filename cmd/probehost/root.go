package main

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/probehost/internal/app"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/config"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
)

// NewRoot builds the top-level probehost command.
//
// Errors and usage are silenced; execute decides how to print them.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "probehost",
		Short:         "Run sandboxed usage probe plugins",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("data-dir", "", "app data directory (default: APP_DATA_DIR or the platform data dir)")
	root.PersistentFlags().StringSlice("plugin-dir", nil, "plugin root directory, repeatable (default: <data-dir>/plugins)")
	root.PersistentFlags().String("log-level", "", "log level: debug|info|warn|error")

	root.AddCommand(
		newListCmd(),
		newRunCmd(),
		newServeCmd(),
		newSettingsCmd(),
	)
	return root
}

// loadConfig layers the global flags over file and environment config.
// quiet lowers the default log level to warn.
func loadConfig(cmd *cobra.Command, quiet bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Root().PersistentFlags()
	if dir, _ := flags.GetString("data-dir"); dir != "" {
		cfg.Runtime.AppDataDir = dir
		if os.Getenv("PLUGIN_DIRS") == "" {
			cfg.Plugins.Dirs = []string{cfg.Layout().PluginsRoot()}
		}
	}
	if dirs, _ := flags.GetStringSlice("plugin-dir"); len(dirs) > 0 {
		cfg.Plugins.Dirs = dirs
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	} else if quiet && os.Getenv("LOG_LEVEL") == "" {
		cfg.Logging.Level = "warn"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, usageExit(fmt.Sprintf("invalid log level %q: %v", cfg.Logging.Level, err))
	}
	return logger, nil
}

// openApp wires the app and discovers plugins. Callers must Close it.
func openApp(cmd *cobra.Command, cfg *config.Config) (*app.App, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, logger, app.Options{})
	if err != nil {
		return nil, err
	}
	if err := a.LoadPlugins(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
