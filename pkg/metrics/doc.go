// Package metrics exposes Prometheus counters and histograms for webhook
// outcomes, billing operations and HTTP traffic on a private registry.
package metrics
