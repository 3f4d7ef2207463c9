package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPrice_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   Price
		want string
	}{
		{"number", Available(decimal.RequireFromString("2350.10")), `2350.1`},
		{"integer", Available(decimal.NewFromInt(29)), `29`},
		{"unavailable", Price{}, `"N/A"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(b) != tc.want {
				t.Errorf("got %s, want %s", b, tc.want)
			}
		})
	}
}

func TestPrice_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		want  string
	}{
		{`29.5`, true, "29.5"},
		{`"2350.10"`, true, "2350.10"},
		{`"N/A"`, false, ""},
		{`null`, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			var p Price
			if err := json.Unmarshal([]byte(tc.in), &p); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if p.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v", p.Valid, tc.valid)
			}
			if tc.valid && !p.Value.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("Value = %s, want %s", p.Value, tc.want)
			}
		})
	}

	var p Price
	if err := json.Unmarshal([]byte(`"abc"`), &p); err == nil {
		t.Error("Unmarshal(abc): expected error")
	}
}

func TestQuoteRecord_Usable(t *testing.T) {
	at := time.Now()
	one := decimal.NewFromInt(1)

	if Unavailable("gold", at).Usable() {
		t.Error("unavailable record reported usable")
	}
	half := QuoteRecord{Symbol: "gold", Offer: Available(one), CapturedAt: at}
	if !half.Usable() || half.Complete() {
		t.Errorf("one-sided record: Usable=%v Complete=%v", half.Usable(), half.Complete())
	}
	full := QuoteRecord{Symbol: "gold", Bid: Available(one), Offer: Available(one)}
	if !full.Complete() {
		t.Error("two-sided record not complete")
	}
}

func TestSnapshot_JSON(t *testing.T) {
	ts := time.Date(2026, 3, 2, 10, 0, 0, 500, time.FixedZone("MSK", 3*3600))
	s := Snapshot{
		Records: map[string]QuoteRecord{
			"gold":   {Symbol: "gold", Bid: Available(decimal.RequireFromString("2350.10")), Offer: Available(decimal.RequireFromString("2351"))},
			"silver": Unavailable("silver", ts),
		},
		Status:       StatusPartial,
		LastUpdated:  ts,
		NextInterval: 300 * time.Second,
		Ready:        true,
	}

	b, err := json.Marshal(s.JSON())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"data":{"gold":{"bid":2350.1,"offer":2351},"silver":{"bid":"N/A","offer":"N/A"}},` +
		`"status":"partial","last_updated":"2026-03-02T07:00:00.0000005Z","ready":true,` +
		`"error":null,"next_refresh_interval":300}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}
}

func TestSnapshot_JSON_Initial(t *testing.T) {
	s := Snapshot{Status: StatusInitializing, Error: "warming up"}
	j := s.JSON()
	if j.LastUpdated != nil {
		t.Errorf("LastUpdated = %q, want null", *j.LastUpdated)
	}
	if j.Error == nil || *j.Error != "warming up" {
		t.Errorf("Error = %v", j.Error)
	}
	if j.Data == nil {
		t.Error("Data must serialize as {} not null")
	}
}

func TestSnapshot_Clone(t *testing.T) {
	s := Snapshot{Records: map[string]QuoteRecord{"gold": Unavailable("gold", time.Time{})}}
	c := s.Clone()
	c.Records["silver"] = Unavailable("silver", time.Time{})
	if _, leaked := s.Records["silver"]; leaked {
		t.Error("Clone shares the records map")
	}
	if (Snapshot{}).Clone().Records == nil {
		t.Error("Clone of empty snapshot has nil Records")
	}
}
