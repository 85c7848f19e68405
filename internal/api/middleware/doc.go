// Package middleware provides the gin middleware of the REST API.
//
//   - CORS: cross-origin access for local dashboards
//   - RateLimit: per-IP token bucket, idle clients are evicted
//   - RequestLogger: one zap line per request
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
