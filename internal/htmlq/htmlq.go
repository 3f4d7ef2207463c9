// Package htmlq wraps cascadia CSS selectors with the small set of tree
// helpers the extractor and the HTTP fetcher share.
//
// Selectors accept full CSS syntax: combinators ("table.quotes .quote__row"),
// pseudo-classes and comma-separated groups.
package htmlq

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group.
type Selector struct {
	raw string
	sel cascadia.Selector
}

// Compile parses a CSS selector group.
func Compile(sel string) (Selector, error) {
	if strings.TrimSpace(sel) == "" {
		return Selector{raw: sel}, fmt.Errorf("htmlq: empty selector")
	}
	c, err := cascadia.Compile(sel)
	if err != nil {
		return Selector{raw: sel}, fmt.Errorf("htmlq: %q: %w", sel, err)
	}
	return Selector{raw: sel, sel: c}, nil
}

// MustCompile is like Compile but panics on error. For tests and constants.
func MustCompile(sel string) Selector {
	s, err := Compile(sel)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Selector) String() string { return s.raw }

// Match reports whether n is an element satisfying s.
func (s Selector) Match(n *html.Node) bool {
	if n == nil || s.sel == nil || n.Type != html.ElementNode {
		return false
	}
	return s.sel.Match(n)
}

// Find returns every node in the subtree at root (root included) matching s,
// in document order.
func Find(root *html.Node, s Selector) []*html.Node {
	if root == nil || s.sel == nil {
		return nil
	}
	return s.sel.MatchAll(root)
}

// First returns the first node under root matching s, or nil.
func First(root *html.Node, s Selector) *html.Node {
	if root == nil || s.sel == nil {
		return nil
	}
	return s.sel.MatchFirst(root)
}

// Closest returns n or its nearest ancestor matching s, or nil.
func Closest(n *html.Node, s Selector) *html.Node {
	for ; n != nil; n = n.Parent {
		if s.Match(n) {
			return n
		}
	}
	return nil
}

// Walk visits root and its descendants depth-first. Returning false from fn
// skips the node's children.
func Walk(root *html.Node, fn func(*html.Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Text returns the concatenated text content of n with surrounding
// whitespace trimmed. Script and style contents are skipped.
func Text(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style") {
			return false
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return strings.TrimSpace(b.String())
}

// Attr returns the value of attribute key on n, or "".
func Attr(n *html.Node, key string) string {
	v, _ := lookup(n, key)
	return v
}

// Parse parses an HTML document.
func Parse(content []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("htmlq: parse: %w", err)
	}
	return doc, nil
}

// Contains reports whether content parses and holds an element matching sel.
func Contains(content []byte, sel Selector) bool {
	doc, err := Parse(content)
	if err != nil {
		return false
	}
	return First(doc, sel) != nil
}

func lookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
