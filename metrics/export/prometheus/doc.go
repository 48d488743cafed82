// Package prometheus exports tokenauth engine metrics through
// client_golang.
//
// [Collector] turns each scrape into one engine snapshot: counters are named
// tokenauth_*_total and the authenticate latency is the
// tokenauth_authenticate_latency_seconds histogram. Register the collector
// on your own registry or mount [Handler].
package prometheus
