// Package server assembles the probe host's HTTP surface.
//
// Server Lifecycle:
//  1. Wire the app components from configuration
//  2. Discover plugins
//  3. Mount middleware (recovery, request logging, metrics, CORS, rate limit)
//  4. Mount REST routes, /ws and /metrics
//  5. Serve with gzip compression until the context ends
//  6. Shut down gracefully and wait for running batches
//
// Example Usage:
//
//	srv, err := server.NewServer(cfg, logger, server.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
