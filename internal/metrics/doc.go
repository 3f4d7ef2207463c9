// Package metrics exposes the refresher's health in the Prometheus text
// format. Counters are updated as cycles finish; everything else is read
// from the store at scrape time.
package metrics
