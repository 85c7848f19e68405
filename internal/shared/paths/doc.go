// Package paths provides the standardized on-disk layout of the probe host.
//
// # Directory Structure
//
//	<app data dir>/
//	  ├── plugins/          (user-installed plugins, one directory each)
//	  ├── plugins_data/     (per-plugin writable data)
//	  │   └── <plugin id>/
//	  ├── settings.json     (plugin order + disabled list)
//	  └── probehost.toml    (optional host configuration)
//
// # Usage
//
//	layout := paths.New(appDataDir)
//	dataDir := layout.PluginDataDir("cursor")  // <app>/plugins_data/cursor
//
//	if err := paths.ValidatePluginID(id); err != nil {
//	    // reject before building any path from it
//	}
package paths
