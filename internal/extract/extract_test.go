package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quotewatch/quotewatch/internal/config"
	"github.com/quotewatch/quotewatch/pkg/types"
)

var at = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// page renders rows in the source's markup. Each row is name, bid, ask.
func page(rows ...[3]string) []byte {
	out := `<html><body><div class="quotes">`
	for _, r := range rows {
		out += `<div class="quote__row"><div class="quote__row__cell--name">` + r[0] +
			`</div><div class="quote__row__cell--bid">` + r[1] +
			`</div><div class="quote__row__cell--ask">` + r[2] + `</div></div>`
	}
	return []byte(out + `</div></body></html>`)
}

func layout(t *testing.T) Layout {
	t.Helper()
	l, err := Compile(config.Default().Layout)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return l
}

var metals = config.Catalog{
	{Symbol: "gold", Label: "Gold"},
	{Symbol: "silver", Label: "Silver"},
}

func wantPrice(t *testing.T, sym, side string, got types.Price, want string) {
	t.Helper()
	if !got.Valid {
		t.Errorf("%s %s unavailable, want %s", sym, side, want)
		return
	}
	if !got.Value.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s %s = %s, want %s", sym, side, got.Value, want)
	}
}

func TestExtract_BothMatched(t *testing.T) {
	content := page(
		[3]string{"Gold", "2,350.10", "2,351.00"},
		[3]string{" Silver ", "29.50", "29.60"},
		[3]string{"Copper", "4.10", "4.12"},
	)
	res, err := Extract(content, metals, layout(t), at)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Err() != nil {
		t.Fatalf("Result.Err = %v", res.Err())
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2 (catalog only)", len(res.Records))
	}
	wantPrice(t, "gold", "bid", res.Records["gold"].Bid, "2350.10")
	wantPrice(t, "gold", "offer", res.Records["gold"].Offer, "2351.00")
	wantPrice(t, "silver", "bid", res.Records["silver"].Bid, "29.50")
	wantPrice(t, "silver", "offer", res.Records["silver"].Offer, "29.60")
	if !res.Records["gold"].CapturedAt.Equal(at) {
		t.Errorf("CapturedAt = %v, want %v", res.Records["gold"].CapturedAt, at)
	}
	if res.Matches["silver"] != MatchLabel {
		t.Errorf("silver matched by %q, want label", res.Matches["silver"])
	}
}

func TestExtract_NothingMatched(t *testing.T) {
	content := page([3]string{"Copper", "4.10", "4.12"})
	res, err := Extract(content, metals, layout(t), at)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !errors.Is(res.Err(), ErrNoMatch) {
		t.Fatalf("Result.Err = %v, want ErrNoMatch", res.Err())
	}
	for _, sym := range []string{"gold", "silver"} {
		if rec, ok := res.Records[sym]; !ok || rec.Usable() {
			t.Errorf("%s: record %+v, want present and unavailable", sym, rec)
		}
	}
}

func TestExtract_PartialGap(t *testing.T) {
	content := page([3]string{"Gold", "2,350.10", "2,351.00"})
	res, _ := Extract(content, metals, layout(t), at)

	if !res.AnyUsable() || res.Usable() != 1 {
		t.Fatalf("Usable = %d, want 1", res.Usable())
	}
	if got := res.Missing(metals); len(got) != 1 || got[0] != "silver" {
		t.Errorf("Missing = %v, want [silver]", got)
	}
	if res.Records["silver"].Symbol != "silver" {
		t.Errorf("unmatched record lost its symbol: %+v", res.Records["silver"])
	}
}

func TestExtract_FieldParseFailureIsolated(t *testing.T) {
	content := page([3]string{"Gold", "n/a", "2,351.00"})
	res, _ := Extract(content, metals[:1], layout(t), at)

	rec := res.Records["gold"]
	if rec.Bid.Valid {
		t.Errorf("bid = %v, want unavailable", rec.Bid)
	}
	wantPrice(t, "gold", "offer", rec.Offer, "2351.00")
	if !res.AnyUsable() {
		t.Error("a record with one parsed side should be usable")
	}
}

func TestExtract_IDPreferredOverLabel(t *testing.T) {
	content := []byte(`<html><body>
<div class="quote__row"><div class="quote__row__cell--name">Gold</div>
  <div class="quote__row__cell--bid">1.00</div><div class="quote__row__cell--ask">1.10</div></div>
<div class="quote__row" id="XAUUSD"><div class="quote__row__cell--name">Gold spot</div>
  <div class="quote__row__cell--bid">2,350.10</div><div class="quote__row__cell--ask">2,351.00</div></div>
</body></html>`)
	catalog := config.Catalog{{Symbol: "gold", ID: "XAUUSD", Label: "Gold"}}

	res, _ := Extract(content, catalog, layout(t), at)
	if res.Matches["gold"] != MatchID {
		t.Fatalf("matched by %q, want id", res.Matches["gold"])
	}
	wantPrice(t, "gold", "bid", res.Records["gold"].Bid, "2350.10")
}

func TestExtract_IDOnCellScopesToRow(t *testing.T) {
	content := []byte(`<html><body><table>
<tr class="quote__row"><td class="quote__row__cell--name" data-sym="XAG">Silver</td>
  <td class="quote__row__cell--bid">29.50</td><td class="quote__row__cell--ask">29.60</td></tr>
</table></body></html>`)
	l := config.Default().Layout
	l.IDAttr = "data-sym"
	compiled, err := Compile(l)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	res, _ := Extract(content, config.Catalog{{Symbol: "silver", ID: "XAG"}}, compiled, at)
	wantPrice(t, "silver", "offer", res.Records["silver"].Offer, "29.60")
}

func TestExtract_LabelFallbackWhenIDAbsent(t *testing.T) {
	content := page([3]string{"Platinum", "980.5", "985.0"})
	catalog := config.Catalog{{Symbol: "platinum", ID: "XPTUSD", Label: "Platinum"}}

	res, _ := Extract(content, catalog, layout(t), at)
	if res.Matches["platinum"] != MatchLabel {
		t.Errorf("matched by %q, want label fallback", res.Matches["platinum"])
	}
	wantPrice(t, "platinum", "bid", res.Records["platinum"].Bid, "980.5")
}

func TestExtract_LabelMustMatchExactly(t *testing.T) {
	content := page([3]string{"Gold (spot)", "1", "2"})
	res, _ := Extract(content, metals[:1], layout(t), at)
	if res.AnyUsable() {
		t.Error("substring label matched; want exact match only")
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2,350.10", "2350.10", false},
		{"  29.50\n", "29.50", false},
		{"1 234.5", "1234.5", false},
		{"1 234 567", "1234567", false},
		{"\u22120.25", "-0.25", false},
		{"", "", true},
		{"N/A", "", true},
		{"12.3.4", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePrice(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParsePrice(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if !got.Value.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tc.in, got.Value, tc.want)
			}
		})
	}
}

func TestCompile_BadSelector(t *testing.T) {
	l := config.Default().Layout
	l.Bid = "td >"
	if _, err := Compile(l); err == nil {
		t.Error("Compile: expected error for bad bid selector")
	}
}
