// Package metrics exposes the engine's Prometheus collectors.
//
// Metrics implements processor.Recorder and dispatcher.Observer, so passing
// it to processor.WithRecorder wires both the pipeline counters and the
// per-delivery counters. HTTPMetrics instruments the API router.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg, "notifykit")
//	p, _ := processor.New(cfg, repo, processor.WithRecorder(m))
//	r.Handle("/metrics", metrics.Handler(reg))
package metrics
