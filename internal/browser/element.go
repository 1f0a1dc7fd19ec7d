package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/vendo/internal/interfaces"
)

// pageElement wraps a goquery selection taken from a page snapshot.
// Reads are optional-returning so a missing field is absent, not an error.
type pageElement struct {
	sel *goquery.Selection
}

func newPageElement(sel *goquery.Selection) interfaces.Element {
	return &pageElement{sel: sel}
}

func (e *pageElement) Text() (string, bool) {
	if e.sel == nil || e.sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(e.sel.First().Text()), true
}

func (e *pageElement) Attr(name string) (string, bool) {
	if e.sel == nil || e.sel.Length() == 0 {
		return "", false
	}
	return e.sel.First().Attr(name)
}

func (e *pageElement) Find(selector string) (interfaces.Element, bool) {
	if e.sel == nil || e.sel.Length() == 0 {
		return nil, false
	}
	sub := e.sel.First().Find(selector)
	if sub.Length() == 0 {
		return nil, false
	}
	return newPageElement(sub), true
}

// elementsFrom collects every match of selector in the document
func elementsFrom(doc *goquery.Document, selector string) []interfaces.Element {
	var elements []interfaces.Element
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		elements = append(elements, newPageElement(sel))
	})
	return elements
}
