/*
Package monitoring provides Prometheus metrics for the probe host.

# Overview

Metrics live on a private registry per Metrics value so that tests and
embedded hosts never collide on the default registerer.

# Tracked

- HTTP request metrics for the REST surface
- Probe run counts by outcome and run latency
- Live isolate gauge
- Host capability calls and latency
- Batch counts and sizes
- WebSocket connections and messages

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "sqlite", "query")
	// ... perform operation ...
	timer.Stop(err)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
*/
package monitoring
