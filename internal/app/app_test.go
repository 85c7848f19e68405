package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/config"
	"github.com/GriffinCanCode/probehost/internal/runtime/output"
	"github.com/GriffinCanCode/probehost/internal/settings"
)

const planScript = `
globalThis.__openusage_plugin = {
	id: %q,
	probe: function (ctx) {
		return { lines: [{ type: "text", label: "Plan", value: %q }] }
	}
}`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Runtime.AppDataDir = t.TempDir()
	cfg.Plugins.Dirs = []string{cfg.Layout().PluginsRoot()}
	return cfg
}

func writePlugin(t *testing.T, cfg *config.Config, id, plan string) {
	t.Helper()
	dir := filepath.Join(cfg.Plugins.Dirs[0], id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	manifest := fmt.Sprintf(`{"schemaVersion":1,"id":%q,"name":%q,"version":"1.0.0"}`, id, id)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.js"), []byte(fmt.Sprintf(planScript, id, plan)), 0o644))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Runtime.TimeoutMS = 0

	_, err := New(cfg, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestAppRunsEnabledPlugins(t *testing.T) {
	cfg := testConfig(t)
	writePlugin(t, cfg, "alpha", "Pro")
	writePlugin(t, cfg, "beta", "Team")

	var events []batch.Event
	a, err := New(cfg, nil, Options{Emitter: batch.EmitterFunc(func(e batch.Event) {
		events = append(events, e)
	})})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.LoadPlugins(context.Background()))
	assert.Equal(t, []string{"alpha", "beta"}, a.Registry.IDs())

	require.NoError(t, a.Settings.Save(settings.PluginSettings{Order: []string{"beta", "alpha"}, Disabled: []string{"alpha"}}))
	s, err := a.EnabledSettings()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, settings.EnabledIDs(s))

	started, outputs := a.Batches.Run(context.Background(), "", nil)
	assert.Equal(t, []string{"beta"}, started.PluginIDs)
	require.Len(t, outputs, 1)
	assert.Equal(t, "beta", outputs[0].ProviderID)
	assert.Equal(t, []output.Line{output.Text{Label: "Plan", Value: "Team"}}, outputs[0].Lines)

	assert.Equal(t, 1, a.History.Stats("beta").Count)
	assert.EqualValues(t, 1, a.Metrics.GetSnapshot().TotalRuns)
	require.NotEmpty(t, events)
	assert.Equal(t, batch.EventComplete, events[len(events)-1].Type)
}

func TestEnabledSettingsDropsUnknownIDs(t *testing.T) {
	cfg := testConfig(t)
	writePlugin(t, cfg, "alpha", "Pro")

	a, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, a.LoadPlugins(context.Background()))

	require.NoError(t, a.Settings.Save(settings.PluginSettings{Order: []string{"gone", "alpha"}, Disabled: []string{"gone"}}))
	s, err := a.EnabledSettings()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, s.Order)
	assert.Empty(t, s.Disabled)
}
