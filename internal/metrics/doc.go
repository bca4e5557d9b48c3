// Package metrics provides Prometheus metrics for the stream session, the
// transcoder's progress reports and the background jobs.
//
// Metrics are registered with promauto on the default registry and exposed by
// exporters.HTTPHandler. Progress values are also kept in a local cache so the
// control API can report them without scraping Prometheus.
package metrics
