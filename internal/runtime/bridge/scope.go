package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/probehost/internal/shared/paths"
)

// Scope is the set of filesystem roots one run may touch.
type Scope struct {
	PluginID      string
	PluginDataDir string
	AppDataDir    string

	// resolved forms, symlinks evaluated
	pluginRoot string
	appRoot    string
	dataRoot   string
}

// NewScope builds the scope for a plugin under the given app data layout.
// The plugin data directory must already exist.
func NewScope(layout paths.Layout, pluginID string) (*Scope, error) {
	s := &Scope{
		PluginID:      pluginID,
		PluginDataDir: layout.PluginDataDir(pluginID),
		AppDataDir:    layout.Root,
	}

	var err error
	if s.pluginRoot, err = resolvePathForCheck(s.PluginDataDir); err != nil {
		return nil, fmt.Errorf("resolve plugin data dir: %w", err)
	}
	if s.appRoot, err = resolvePathForCheck(s.AppDataDir); err != nil {
		return nil, fmt.Errorf("resolve app data dir: %w", err)
	}
	if s.dataRoot, err = resolvePathForCheck(layout.PluginsDataRoot()); err != nil {
		return nil, fmt.Errorf("resolve plugins data root: %w", err)
	}
	return s, nil
}

// Resolve validates path against the scope and returns the cleaned
// absolute path to operate on. Relative paths are taken from the plugin
// data directory.
func (s *Scope) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", invalid("path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", invalid("path contains NUL")
	}

	candidate, err := paths.ExpandHome(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.PluginDataDir, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolvePathForCheck(candidate)
	if err != nil {
		return "", err
	}

	if paths.HasPathPrefix(resolved, s.pluginRoot) {
		return candidate, nil
	}
	// Other plugins' data dirs live under the app root but are off limits.
	if paths.HasPathPrefix(resolved, s.appRoot) && !paths.HasPathPrefix(resolved, s.dataRoot) {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideScope, path)
}

func resolvePathForCheck(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err == nil {
		return filepath.Clean(real), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	// Not there yet (write case): validate its nearest existing parent.
	dir := filepath.Dir(path)
	for {
		realDir, dirErr := filepath.EvalSymlinks(dir)
		if dirErr == nil {
			leaf := strings.TrimPrefix(path, dir)
			leaf = strings.TrimPrefix(leaf, string(filepath.Separator))
			return filepath.Clean(filepath.Join(realDir, leaf)), nil
		}
		if !errors.Is(dirErr, os.ErrNotExist) {
			return "", fmt.Errorf("failed to resolve parent path: %w", dirErr)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for path: %s", path)
		}
		dir = parent
	}
}
