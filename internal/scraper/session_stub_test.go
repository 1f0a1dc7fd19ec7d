package scraper

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/vendo/internal/browser"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// fakeElement is an in-memory Element keyed by flat selector strings
type fakeElement struct {
	text  string
	attrs map[string]string
	kids  map[string]*fakeElement
}

func (e *fakeElement) Text() (string, bool) {
	return e.text, true
}

func (e *fakeElement) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) Find(selector string) (interfaces.Element, bool) {
	kid, ok := e.kids[selector]
	if !ok {
		return nil, false
	}
	return kid, true
}

// soldRow builds a table row with the given cell texts. Empty strings
// leave the corresponding cell out entirely.
func soldRow(title, price, shipping, sold, sales, date string) *fakeElement {
	kids := make(map[string]*fakeElement)
	if title != "" {
		kids[titleLinkTextSel] = &fakeElement{text: title}
		kids[titleLinkSel] = &fakeElement{attrs: map[string]string{"href": "https://www.ebay.com/itm/123?hash=abc"}}
	}
	if price != "" {
		kids[avgSoldPriceSel] = &fakeElement{text: price}
	}
	if shipping != "" {
		kids[avgShippingSel] = &fakeElement{text: shipping}
	}
	if sold != "" {
		kids[totalSoldSel] = &fakeElement{text: sold}
	}
	if sales != "" {
		kids[totalSalesSel] = &fakeElement{text: sales}
	}
	if date != "" {
		kids[dateLastSoldSel] = &fakeElement{text: date}
	}
	return &fakeElement{kids: kids}
}

// stubSession is a scriptable session for task and orchestrator tests.
// Navigation just records the URL and moves the location, so the guard
// sees a normal page unless onNavigate says otherwise.
type stubSession struct {
	location   string
	navigated  []string
	waitCalls  int
	onNavigate func(url string)
	waitFor    func(s *stubSession) ([]interfaces.Element, error)
	find       func(s *stubSession, selector string) (interfaces.Element, bool, error)
}

func (s *stubSession) Navigate(_ context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	if s.onNavigate != nil {
		s.onNavigate(url)
	} else {
		s.location = url
	}
	return nil
}

func (s *stubSession) Location(context.Context) (string, error) {
	return s.location, nil
}

func (s *stubSession) Reload(context.Context) error { return nil }

func (s *stubSession) WaitFor(_ context.Context, _ string, _ time.Duration) ([]interfaces.Element, error) {
	s.waitCalls++
	if s.waitFor == nil {
		return nil, browser.ErrWaitTimeout
	}
	return s.waitFor(s)
}

func (s *stubSession) Find(_ context.Context, selector string) (interfaces.Element, bool, error) {
	if s.find == nil {
		return nil, false, nil
	}
	return s.find(s, selector)
}

func (s *stubSession) Click(context.Context, string) error { return nil }

func (s *stubSession) Cookies(context.Context) ([]models.CookieRecord, error) {
	return nil, nil
}

func (s *stubSession) AddCookie(context.Context, models.CookieRecord) error { return nil }
func (s *stubSession) ClearCookies(context.Context) error                   { return nil }

func (s *stubSession) CaptureViewport(context.Context) ([]byte, error) {
	return []byte{}, nil
}

func (s *stubSession) Close() error { return nil }

// currentOffset reads the offset parameter out of the session's location
func (s *stubSession) currentOffset() int {
	parsed, err := url.Parse(s.location)
	if err != nil {
		return 0
	}
	offset, _ := strconv.Atoi(parsed.Query().Get("offset"))
	return offset
}
