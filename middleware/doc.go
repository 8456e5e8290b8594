// Package middleware provides the middleware chain that message engines run
// every decoded request through.
//
// Each middleware wraps the next handler, so Chain(m1, m2)(h) runs m1, then
// m2, then h:
//
//	handler := middleware.Chain(
//	    middleware.Recover(),
//	    middleware.RequestID(),
//	    middleware.Logging(middleware.NewSlogLogger(logger)),
//	    middleware.RateLimit(20, 40),
//	)(base)
//
// # Available Middleware
//
//   - Recover: turns panics into internal errors
//   - RequestID: tags requests with a UUID
//   - Timeout: bounds request duration
//   - Logging: logs method, duration, session and request IDs
//   - RateLimit: token bucket per session (fortify)
//   - SizeLimit: rejects oversized params
//   - OTel: spans and metrics through OpenTelemetry
package middleware
