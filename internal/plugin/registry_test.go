package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
)

const probeScript = `globalThis.__openusage_plugin = { id: "%s", probe: function () { return { lines: [] } } }`

func writePlugin(t *testing.T, root, dir, id, version string) string {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	manifest := fmt.Sprintf(`{"schemaVersion":1,"id":%q,"name":%q,"version":%q}`, id, strings.ToUpper(id), version)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.json"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.js"), []byte(fmt.Sprintf(probeScript, id)), 0o644))
	return pluginDir
}

func TestRegistryLoad(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "b-plugin", "beta", "1.0.0")
	writePlugin(t, root, "a-plugin", "alpha", "1.0.0")
	writePlugin(t, root, "node_modules/x", "ignored", "1.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(root, "a-plugin", "icon.svg"),
		[]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), 0o644))

	broken := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "plugin.json"), []byte(`{"id":"broken"}`), 0o644))

	metrics := monitoring.NewMetrics()
	reg := NewRegistry(nil, metrics)
	require.NoError(t, reg.Load(context.Background(), []string{root}, []string{"node_modules"}))

	assert.Equal(t, []string{"alpha", "beta"}, reg.IDs())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PluginsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ManifestRejects.WithLabelValues("schema")))

	alpha, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(alpha.IconDataURL, "data:image/svg+xml;base64,"))
	assert.Contains(t, alpha.Script, `id: "alpha"`)

	desc := alpha.Descriptor()
	assert.Equal(t, "alpha", desc.ID)
	assert.Equal(t, filepath.Join(root, "a-plugin", "plugin.js"), desc.Filename)

	beta, _ := reg.Get("beta")
	assert.Empty(t, beta.IconDataURL)

	_, ok = reg.Get("ignored")
	assert.False(t, ok)
}

func TestRegistryDuplicateResolution(t *testing.T) {
	bundled := t.TempDir()
	user := t.TempDir()

	writePlugin(t, bundled, "mock", "mock", "1.0.0")
	writePlugin(t, bundled, "cursor", "cursor", "2.0.0")
	writePlugin(t, bundled, "zed", "zed", "1.0.0")
	userMock := writePlugin(t, user, "mock", "mock", "1.0.0")
	writePlugin(t, user, "cursor", "cursor", "1.5.0")
	userZed := writePlugin(t, user, "zed", "zed", "1.1.0")

	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Load(context.Background(), []string{bundled, user}, nil))

	assert.Equal(t, []string{"cursor", "mock", "zed"}, reg.IDs())

	mock, _ := reg.Get("mock")
	assert.Equal(t, userMock, mock.Dir, "equal versions resolve to the later root")

	cursor, _ := reg.Get("cursor")
	assert.Equal(t, "2.0.0", cursor.Manifest.Version)

	zed, _ := reg.Get("zed")
	assert.Equal(t, userZed, zed.Dir)
}

func TestRegistryManifestPrecedence(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "mock", "mock", "1.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte("id: other\n"), 0o644))

	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Load(context.Background(), []string{root}, nil))
	assert.Equal(t, []string{"mock"}, reg.IDs())
}

func TestRegistryMissingEntryAndRoot(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "mock", "mock", "1.0.0")
	require.NoError(t, os.Remove(filepath.Join(dir, "plugin.js")))

	reg := NewRegistry(nil, nil)
	require.NoError(t, reg.Load(context.Background(), []string{filepath.Join(root, "missing"), root}, nil))
	assert.Empty(t, reg.List())
	assert.Empty(t, reg.Metas())
}

func TestRegistryAdd(t *testing.T) {
	reg := NewRegistry(nil, nil)
	reg.Add(&Plugin{Manifest: &Manifest{ID: "a", Name: "A"}})
	reg.Add(&Plugin{Manifest: &Manifest{ID: "b", Name: "B"}})
	reg.Add(&Plugin{Manifest: &Manifest{ID: "a", Name: "A2"}})

	assert.Equal(t, []string{"a", "b"}, reg.IDs())
	a, _ := reg.Get("a")
	assert.Equal(t, "A2", a.Name())
}
