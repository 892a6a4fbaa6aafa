// Package observe exposes resilience registry snapshots as OpenTelemetry
// metrics.
//
// It is a pure instrumentation bridge: the Collector registers asynchronous
// instruments whose callback pulls Metrics()/Stats() snapshots from the
// registries on every collection cycle. Nothing is pushed; the primitives
// themselves stay observability-free.
//
// The exporter factories build the SDK reader or span exporter named by
// configuration (stdout, otlp, prometheus) for consumers bootstrapping a
// provider.
package observe
