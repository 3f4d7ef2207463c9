package status

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/quotewatch/quotewatch/pkg/types"
)

// Hint levels, most severe first.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
	LevelOK       = "ok"
)

// Hint is one human-readable insight about the cache.
type Hint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional number tied to the hint (e.g. data age in minutes).
	Value *float64 `json:"value,omitempty"`
}

// Report is the payload for GET /api/v1/status.
type Report struct {
	Ready       bool         `json:"ready"`
	Status      types.Status `json:"status"`
	Error       string       `json:"error,omitempty"`
	Message     string       `json:"message"`
	LastUpdated *string      `json:"last_updated"` // RFC3339Nano, null before the first success
	Diagnostics []Hint       `json:"diagnostics"`
}

// Build derives a Report from snap as seen at now.
func Build(snap types.Snapshot, now time.Time) Report {
	r := Report{
		Ready:       snap.Ready,
		Status:      snap.Status,
		Error:       snap.Error,
		Message:     Message(snap),
		Diagnostics: Diagnose(snap, now),
	}
	if !snap.LastUpdated.IsZero() {
		ts := snap.LastUpdated.UTC().Format(time.RFC3339Nano)
		r.LastUpdated = &ts
	}
	return r
}

// Message returns "status" or "status: error".
func Message(snap types.Snapshot) string {
	if snap.Error == "" {
		return string(snap.Status)
	}
	return fmt.Sprintf("%s: %s", snap.Status, snap.Error)
}

// Diagnose returns hints ordered critical first, then warnings, then info.
func Diagnose(snap types.Snapshot, now time.Time) []Hint {
	var hints []Hint

	switch {
	case snap.Status == types.StatusInitializing:
		return []Hint{{
			Key:   "warming_up",
			Level: LevelInfo,
			Title: "Warming up",
			Detail: "The first acquisition cycle has not finished yet. " +
				"Quotes will appear once the source page has loaded and been parsed.",
		}}

	case snap.Status == types.StatusError && !snap.Ready:
		hints = append(hints, Hint{
			Key:   "no_data",
			Level: LevelCritical,
			Title: "No quotes yet",
			Detail: fmt.Sprintf(
				"No cycle has succeeded since startup. The last attempt failed with: %q. "+
					"Next attempt in %s.",
				snap.Error, snap.NextInterval,
			),
		})
		return hints

	case snap.Status == types.StatusError:
		age := now.Sub(snap.LastUpdated).Minutes()
		hints = append(hints, Hint{
			Key:   "serving_cached",
			Level: LevelWarning,
			Title: "Serving cached quotes",
			Detail: fmt.Sprintf(
				"The last cycle failed with: %q. Quotes below are from the last successful "+
					"cycle, %.0f minutes ago. Next attempt in %s.",
				snap.Error, age, snap.NextInterval,
			),
			Value: &age,
		})
	}

	var missing, oneSided []string
	for sym, rec := range snap.Records {
		switch {
		case !rec.Usable():
			missing = append(missing, sym)
		case !rec.Complete():
			oneSided = append(oneSided, sym)
		}
	}
	slices.Sort(missing)
	slices.Sort(oneSided)

	if len(missing) > 0 {
		n := float64(len(missing))
		hints = append(hints, Hint{
			Key:   "symbols_unavailable",
			Level: LevelWarning,
			Title: fmt.Sprintf("%d unavailable", len(missing)),
			Detail: fmt.Sprintf(
				"These symbols were not found on the source page: %s. "+
					"Check the catalog's id and label against the page markup.",
				strings.Join(missing, ", "),
			),
			Value: &n,
		})
	}
	if len(oneSided) > 0 {
		hints = append(hints, Hint{
			Key:   "one_sided",
			Level: LevelInfo,
			Title: "Incomplete quotes",
			Detail: fmt.Sprintf(
				"Only one of bid and offer could be parsed for: %s.",
				strings.Join(oneSided, ", "),
			),
		})
	}

	if len(hints) == 0 {
		hints = append(hints, Hint{
			Key:    "healthy",
			Level:  LevelOK,
			Title:  "All clear",
			Detail: fmt.Sprintf("All %d symbols are quoted. Next refresh in %s.", len(snap.Records), snap.NextInterval),
		})
	}
	return hints
}
