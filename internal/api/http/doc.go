// Package http implements the REST handlers of the probe host.
//
// Routes:
//
//	GET  /healthz
//	GET  /api/plugins
//	GET  /api/plugins/:id/stats
//	POST /api/batches
//	GET  /api/settings
//	PUT  /api/settings
//	GET  /api/metrics
package http
