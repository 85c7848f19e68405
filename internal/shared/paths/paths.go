package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// AppName is used for the default data directory name
const AppName = "probehost"

// Well-known entries below the app data dir
const (
	PluginsDir     = "plugins"
	PluginsDataDir = "plugins_data"
	SettingsFile   = "settings.json"
	ConfigFile     = "probehost.toml"
)

var pluginIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Layout resolves host paths below one app data directory
type Layout struct {
	Root string
}

// New returns the layout rooted at appDataDir
func New(appDataDir string) Layout {
	return Layout{Root: filepath.Clean(appDataDir)}
}

// PluginsRoot returns the default user plugin directory
func (l Layout) PluginsRoot() string {
	return filepath.Join(l.Root, PluginsDir)
}

// PluginsDataRoot returns the parent of every plugin data dir
func (l Layout) PluginsDataRoot() string {
	return filepath.Join(l.Root, PluginsDataDir)
}

// PluginDataDir returns the plugin's private data directory
func (l Layout) PluginDataDir(pluginID string) string {
	return filepath.Join(l.PluginsDataRoot(), pluginID)
}

// SettingsPath returns the settings store file
func (l Layout) SettingsPath() string {
	return filepath.Join(l.Root, SettingsFile)
}

// ConfigPath returns the optional TOML config file
func (l Layout) ConfigPath() string {
	return filepath.Join(l.Root, ConfigFile)
}

// EnsurePluginDataDir creates the plugin data directory if needed
func (l Layout) EnsurePluginDataDir(pluginID string) (string, error) {
	if err := ValidatePluginID(pluginID); err != nil {
		return "", err
	}
	dir := l.PluginDataDir(pluginID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create plugin data dir %s: %w", dir, err)
	}
	return dir, nil
}

// DefaultAppDataDir returns the platform data directory for the host
func DefaultAppDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", AppName)
	}
	return filepath.Join(home, ".local", "share", AppName)
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ValidatePluginID checks if a plugin ID is safe for path construction
func ValidatePluginID(pluginID string) error {
	if pluginID == "" {
		return fmt.Errorf("plugin ID cannot be empty")
	}
	if !pluginIDPattern.MatchString(pluginID) {
		return fmt.Errorf("plugin ID %q must match %s", pluginID, pluginIDPattern.String())
	}
	return nil
}

// HasPathPrefix reports whether path is root or lies below it
func HasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
