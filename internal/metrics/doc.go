// Package metrics exposes Prometheus counters for fetching, analysis, chat completions,
// export, publishing and pipeline runs.
package metrics
