// Command probehost discovers usage probe plugins and runs them in
// sandboxed script isolates.
//
//	probehost list [--json]
//	probehost run [plugin-id...] [--timeout 5s] [--json]
//	probehost serve [--addr 127.0.0.1:8787]
//	probehost settings show|enable|disable|move
//
// Configuration comes from probehost.toml in the app data directory, then
// the environment, then the global flags.
package main
