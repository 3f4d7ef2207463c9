// Package config loads and watches the quotewatch configuration file.
//
// Top-level types:
//   - Config{Source, Layout, Catalog, Schedule, Server, Log}: full tree parsed from YAML
//   - Source: page URL, fetcher driver (browser|http), readiness selector, timeouts,
//     resource blocking and the optional daily recycle time
//   - Layout: selectors for quote rows and their label/bid/offer cells
//   - Catalog: ordered symbol entries, matched by stable id or by displayed label
//   - Schedule: business-day/weekend intervals, error backoff and its floor,
//     warm-up delay, per-cycle timeout, shutdown grace
//
// Load(path) applies defaults, then the YAML file, then QUOTEWATCH_* environment
// overrides (caarlos0/env), then validates. The error backoff must be shorter
// than every refresh interval.
//
// Watch(ctx, path, onChange) uses fsnotify to re-Load the file on write and
// calls onChange with the new Config. Invalid edits are logged and ignored.
package config
