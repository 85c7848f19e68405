package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

func newTestBridge(t *testing.T, pluginID string, opts Options) (*Bridge, paths.Layout) {
	t.Helper()
	layout := paths.New(t.TempDir())
	_, err := layout.EnsurePluginDataDir(pluginID)
	require.NoError(t, err)

	scope, err := NewScope(layout, pluginID)
	require.NoError(t, err)

	b := New(scope, opts, nil, nil)
	t.Cleanup(b.Close)
	return b, layout
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var bg = context.Background()
