package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// NotAvailable is the JSON representation of a missing price.
const NotAvailable = "N/A"

// Price is a quote value that may be unavailable.
// The zero value is unavailable.
type Price struct {
	Value decimal.Decimal
	Valid bool
}

// Available wraps d as a valid Price.
func Available(d decimal.Decimal) Price {
	return Price{Value: d, Valid: true}
}

// Float64 returns the value and whether it is available.
func (p Price) Float64() (float64, bool) {
	if !p.Valid {
		return 0, false
	}
	f, _ := p.Value.Float64()
	return f, true
}

func (p Price) String() string {
	if !p.Valid {
		return NotAvailable
	}
	return p.Value.String()
}

// MarshalJSON writes a bare JSON number, or "N/A" when unavailable.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return json.Marshal(NotAvailable)
	}
	return []byte(p.Value.String()), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string, "N/A" or null.
func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = Price{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == NotAvailable || s == "" {
			*p = Price{}
			return nil
		}
		b = []byte(s)
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*p = Available(d)
	return nil
}

// QuoteRecord is one symbol's bid/offer as seen in a single acquisition cycle.
type QuoteRecord struct {
	Symbol     string
	Bid        Price
	Offer      Price
	CapturedAt time.Time
}

// Unavailable returns a record for symbol with neither side known.
func Unavailable(symbol string, at time.Time) QuoteRecord {
	return QuoteRecord{Symbol: symbol, CapturedAt: at}
}

// Usable reports whether at least one side of the quote was parsed.
func (r QuoteRecord) Usable() bool { return r.Bid.Valid || r.Offer.Valid }

// Complete reports whether both sides of the quote were parsed.
func (r QuoteRecord) Complete() bool { return r.Bid.Valid && r.Offer.Valid }

// Status is the outcome of the most recent acquisition cycle.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusSuccess      Status = "success"
	StatusPartial      Status = "partial"
	StatusError        Status = "error"
)

// Snapshot is the cache value exposed to readers.
type Snapshot struct {
	Records      map[string]QuoteRecord
	Status       Status
	LastUpdated  time.Time // zero until the first successful cycle
	Error        string    // empty when the last cycle succeeded
	NextInterval time.Duration
	Ready        bool
}

// Clone returns a copy of s that shares nothing mutable with it.
func (s Snapshot) Clone() Snapshot {
	s.Records = maps.Clone(s.Records)
	if s.Records == nil {
		s.Records = map[string]QuoteRecord{}
	}
	return s
}

// QuoteJSON is one entry of SnapshotJSON.Data.
type QuoteJSON struct {
	Bid   Price `json:"bid"`
	Offer Price `json:"offer"`
}

// SnapshotJSON is the wire shape of a Snapshot.
type SnapshotJSON struct {
	Data                map[string]QuoteJSON `json:"data"`
	Status              Status               `json:"status"`
	LastUpdated         *string              `json:"last_updated"`
	Ready               bool                 `json:"ready"`
	Error               *string              `json:"error"`
	NextRefreshInterval int64                `json:"next_refresh_interval"`
}

// JSON converts s to its wire shape.
func (s Snapshot) JSON() SnapshotJSON {
	out := SnapshotJSON{
		Data:                make(map[string]QuoteJSON, len(s.Records)),
		Status:              s.Status,
		Ready:               s.Ready,
		NextRefreshInterval: int64(s.NextInterval / time.Second),
	}
	for sym, r := range s.Records {
		out.Data[sym] = QuoteJSON{Bid: r.Bid, Offer: r.Offer}
	}
	if !s.LastUpdated.IsZero() {
		ts := s.LastUpdated.UTC().Format(time.RFC3339Nano)
		out.LastUpdated = &ts
	}
	if s.Error != "" {
		msg := s.Error
		out.Error = &msg
	}
	return out
}
