package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/probehost/internal/plugin"
	"github.com/GriffinCanCode/probehost/internal/settings"
)

// listEntry is one row of `probehost list --json`.
type listEntry struct {
	plugin.Meta
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

func newListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			entries := listEntries(a.Registry, s)

			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), Styles.Dim.Render("no plugins found in "+strings.Join(cfg.Plugins.Dirs, ", ")))
				return nil
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), formatListEntry(e))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

// listEntries orders plugins by the normalized settings.
func listEntries(reg *plugin.Registry, s settings.PluginSettings) []listEntry {
	disabled := make(map[string]bool, len(s.Disabled))
	for _, id := range s.Disabled {
		disabled[id] = true
	}
	entries := make([]listEntry, 0, len(s.Order))
	for _, id := range s.Order {
		p, ok := reg.Get(id)
		if !ok {
			continue
		}
		entries = append(entries, listEntry{Meta: p.Meta(), Enabled: !disabled[id], Dir: p.Dir})
	}
	return entries
}

func formatListEntry(e listEntry) string {
	mark := Styles.Success.Render("●")
	if !e.Enabled {
		mark = Styles.Dim.Render("○")
	}
	line := fmt.Sprintf("%s %s  %s %s", mark, Styles.Key.Render(e.ID), e.Name, Styles.Dim.Render("v"+e.Version))
	if !e.Enabled {
		line += " " + Styles.Dim.Render("(disabled)")
	}
	return line
}
