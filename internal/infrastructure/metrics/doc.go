// Package metrics exposes expvar-published counters used by the checkpoint
// store and the conversation loop. It avoids external dependencies and is
// served by the HTTP API on /debug/vars and, in Prometheus text format, on
// /metrics.
package metrics
