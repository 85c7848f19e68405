package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/probehost/internal/app"
	"github.com/GriffinCanCode/probehost/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change plugin order and enablement",
	}
	cmd.AddCommand(
		newSettingsShowCmd(),
		newSettingsToggleCmd("enable", true),
		newSettingsToggleCmd("disable", false),
		newSettingsMoveCmd(),
	)
	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the normalized settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd, func(a *app.App, s settings.PluginSettings) error {
				if asJSON {
					return writeJSON(cmd, s)
				}
				for _, e := range listEntries(a.Registry, s) {
					fmt.Fprintln(cmd.OutOrStdout(), formatListEntry(e))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func newSettingsToggleCmd(name string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <plugin-id>",
		Short: name + " a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd, func(a *app.App, s settings.PluginSettings) error {
				id := args[0]
				if _, ok := a.Registry.Get(id); !ok {
					return usageExit("unknown plugin: " + id)
				}
				return saveSettings(cmd, a, settings.SetEnabled(s, id, enabled))
			})
		},
	}
}

func newSettingsMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <plugin-id> <index>",
		Short: "Move a plugin to a zero-based position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return usageExit(fmt.Sprintf("invalid index %q", args[1]))
			}
			return withSettings(cmd, func(a *app.App, s settings.PluginSettings) error {
				id := args[0]
				if _, ok := a.Registry.Get(id); !ok {
					return usageExit("unknown plugin: " + id)
				}
				return saveSettings(cmd, a, settings.Move(s, id, index))
			})
		},
	}
}

// withSettings opens the app and passes the settings normalized against
// the discovered plugins.
func withSettings(cmd *cobra.Command, fn func(*app.App, settings.PluginSettings) error) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	a, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.EnabledSettings()
	if err != nil {
		return failExit(fmt.Sprintf("failed to load settings: %v", err))
	}
	return fn(a, s)
}

func saveSettings(cmd *cobra.Command, a *app.App, s settings.PluginSettings) error {
	s = settings.Normalize(s, a.Registry.IDs())
	if err := a.Settings.Save(s); err != nil {
		return failExit(fmt.Sprintf("failed to save settings: %v", err))
	}
	for _, e := range listEntries(a.Registry, s) {
		fmt.Fprintln(cmd.OutOrStdout(), formatListEntry(e))
	}
	return nil
}
