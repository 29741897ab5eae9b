// Package extract turns fetched documents into harvest Identifiers.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/sports-harvester/internal/harvest"
)

// ErrMissingAttr is returned when a matched node lacks the id attribute.
var ErrMissingAttr = errors.New("matched element is missing attribute")

// Selector collects Attr from every element matching a CSS selector. It parses
// HTML and tolerates loosely formed XML.
type Selector struct {
	CSS    string
	Attr   string
	Prefix string
}

// Extract implements harvest.Extractor.
func (s Selector) Extract(doc []byte) ([]harvest.Identifier, error) {
	if s.CSS == "" || s.Attr == "" {
		return nil, errors.New("selector and attribute are required")
	}
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	var (
		ids    identifierSet
		outErr error
	)
	parsed.Find(s.CSS).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		val, ok := sel.Attr(s.Attr)
		if !ok || strings.TrimSpace(val) == "" {
			outErr = fmt.Errorf("%w %q on %q", ErrMissingAttr, s.Attr, s.CSS)
			return false
		}
		ids.add(s.Prefix + strings.TrimSpace(val))
		return true
	})
	if outErr != nil {
		return nil, outErr
	}
	return ids.list, nil
}

// XPath collects Attr from every node matching an XPath expression over a
// well-formed XML document.
type XPath struct {
	Expr   string
	Attr   string
	Prefix string
}

// Extract implements harvest.Extractor.
func (x XPath) Extract(doc []byte) ([]harvest.Identifier, error) {
	if x.Expr == "" || x.Attr == "" {
		return nil, errors.New("xpath and attribute are required")
	}
	root, err := xmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	nodes, err := xmlquery.QueryAll(root, x.Expr)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", x.Expr, err)
	}
	var ids identifierSet
	for _, n := range nodes {
		val := strings.TrimSpace(n.SelectAttr(x.Attr))
		if val == "" {
			return nil, fmt.Errorf("%w %q on %q", ErrMissingAttr, x.Attr, x.Expr)
		}
		ids.add(x.Prefix + val)
	}
	return ids.list, nil
}

// identifierSet keeps first-seen order and drops repeats.
type identifierSet struct {
	seen map[string]struct{}
	list []harvest.Identifier
}

func (s *identifierSet) add(id string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.list = append(s.list, harvest.Identifier(id))
}
