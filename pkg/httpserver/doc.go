// Package httpserver runs the notifyd HTTP listener with graceful shutdown
// and serves the liveness and readiness probes.
//
// Run blocks until its context is done and then drains in-flight requests
// for ShutdownTimeout, which makes it a natural errgroup member:
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// ReadinessHandler fans out named checks (database, redis, processor) with
// a per-request deadline and reports each result as JSON:
//
//	{"status":"not_ready","checks":{"postgres":"ok","redis":"dial tcp: refused"}}
package httpserver
