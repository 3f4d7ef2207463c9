// Package extract maps a raw quotes page onto typed records for every
// catalog symbol.
//
// Each catalog entry is located by stable identifier first (an element whose
// identifier attribute equals Entry.ID, scoped to its enclosing row) and by
// the exact, trimmed text of a row's label cell otherwise. Bid and offer text
// is trimmed, stripped of group separators and parsed as a decimal; a field
// that fails to parse is marked unavailable without affecting the other.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/quotewatch/quotewatch/internal/config"
	"github.com/quotewatch/quotewatch/internal/htmlq"
	"github.com/quotewatch/quotewatch/pkg/types"
)

// ErrNoMatch is returned by Result.Err when no catalog symbol yielded a usable quote.
var ErrNoMatch = errors.New("extract: no catalog symbol matched")

// groupSeparators are removed from numeric text before parsing.
var groupSeparators = strings.NewReplacer(
	",", "",
	"\u00a0", "", // no-break space
	"\u202f", "", // narrow no-break space
	"\u2009", "", // thin space
	"'", "",
	" ", "",
)

// Layout is the compiled form of config.Layout.
type Layout struct {
	row, label, bid, offer htmlq.Selector
	idAttr                 string
}

// Compile validates the selectors in l.
func Compile(l config.Layout) (Layout, error) {
	var out Layout
	var err error
	for _, s := range []struct {
		dst *htmlq.Selector
		src string
		key string
	}{
		{&out.row, l.Row, "row"},
		{&out.label, l.Label, "label"},
		{&out.bid, l.Bid, "bid"},
		{&out.offer, l.Offer, "offer"},
	} {
		if *s.dst, err = htmlq.Compile(s.src); err != nil {
			return Layout{}, fmt.Errorf("layout.%s: %w", s.key, err)
		}
	}
	out.idAttr = l.IDAttr
	if out.idAttr == "" {
		out.idAttr = "id"
	}
	return out, nil
}

// Match records how a catalog entry was found.
type Match string

const (
	MatchNone  Match = ""
	MatchID    Match = "id"
	MatchLabel Match = "label"
)

// Result is the outcome of one extraction.
type Result struct {
	// Records holds one record per catalog symbol, matched or not.
	Records map[string]types.QuoteRecord

	// Matches records which strategy located each symbol.
	Matches map[string]Match
}

// Usable returns how many records carry at least one parsed value.
func (r Result) Usable() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Usable() {
			n++
		}
	}
	return n
}

// AnyUsable reports whether the cycle produced anything worth caching.
func (r Result) AnyUsable() bool { return r.Usable() > 0 }

// Missing returns the symbols whose record is not usable, in catalog order.
func (r Result) Missing(catalog config.Catalog) []string {
	var out []string
	for _, e := range catalog {
		if !r.Records[e.Symbol].Usable() {
			out = append(out, e.Symbol)
		}
	}
	return out
}

// Err returns ErrNoMatch when nothing usable was extracted.
func (r Result) Err() error {
	if r.AnyUsable() {
		return nil
	}
	return ErrNoMatch
}

// Extract parses content and builds a record for every catalog entry.
// Records are stamped with at. An error is returned only if the document
// itself cannot be parsed; an empty match set is reported through Result.
func Extract(content []byte, catalog config.Catalog, layout Layout, at time.Time) (Result, error) {
	doc, err := htmlq.Parse(content)
	if err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	byLabel := make(map[string]*html.Node)
	for _, row := range htmlq.Find(doc, layout.row) {
		cell := htmlq.First(row, layout.label)
		if cell == nil {
			continue
		}
		label := htmlq.Text(cell)
		if _, dup := byLabel[label]; !dup {
			byLabel[label] = row
		}
	}

	res := Result{
		Records: make(map[string]types.QuoteRecord, len(catalog)),
		Matches: make(map[string]Match, len(catalog)),
	}
	for _, e := range catalog {
		frag, how := locate(doc, e, layout, byLabel)
		if frag == nil {
			res.Records[e.Symbol] = types.Unavailable(e.Symbol, at)
			res.Matches[e.Symbol] = MatchNone
			continue
		}
		res.Records[e.Symbol] = types.QuoteRecord{
			Symbol:     e.Symbol,
			Bid:        cellPrice(frag, layout.bid),
			Offer:      cellPrice(frag, layout.offer),
			CapturedAt: at,
		}
		res.Matches[e.Symbol] = how
	}
	return res, nil
}

// locate finds the fragment for e, preferring its stable identifier.
func locate(doc *html.Node, e config.Entry, layout Layout, byLabel map[string]*html.Node) (*html.Node, Match) {
	if e.ID != "" {
		var found *html.Node
		htmlq.Walk(doc, func(n *html.Node) bool {
			if found != nil {
				return false
			}
			if n.Type == html.ElementNode && htmlq.Attr(n, layout.idAttr) == e.ID {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			if row := htmlq.Closest(found, layout.row); row != nil {
				return row, MatchID
			}
			return found, MatchID
		}
	}
	if e.Label != "" {
		if row, ok := byLabel[strings.TrimSpace(e.Label)]; ok {
			return row, MatchLabel
		}
	}
	return nil, MatchNone
}

func cellPrice(frag *html.Node, sel htmlq.Selector) types.Price {
	cell := htmlq.First(frag, sel)
	if cell == nil {
		return types.Price{}
	}
	p, err := ParsePrice(htmlq.Text(cell))
	if err != nil {
		return types.Price{}
	}
	return p
}

// ParsePrice converts displayed quote text such as "2,350.10" to a Price.
func ParsePrice(text string) (types.Price, error) {
	s := groupSeparators.Replace(strings.TrimSpace(text))
	s = strings.Replace(s, "\u2212", "-", 1) // minus sign
	if s == "" {
		return types.Price{}, fmt.Errorf("extract: empty price")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return types.Price{}, fmt.Errorf("extract: parse price %q: %w", text, err)
	}
	return types.Available(d), nil
}
