// Package app wires the probe host's components from a Config.
//
// Key Components:
//   - Registry: plugins discovered from the configured roots
//   - Host: probe execution with the capability bridge
//   - Batches: concurrent batch orchestration
//   - Settings and History: user order and recent run statistics
//
// Example Usage:
//
//	a, err := app.New(cfg, logger, app.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := a.LoadPlugins(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	_, outputs := a.Batches.Run(ctx, "", nil)
package app
