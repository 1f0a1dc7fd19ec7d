package ebay

import (
	"context"
	"time"

	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
)

// stubSession is a scriptable in-memory session for store and guard tests
type stubSession struct {
	location    string
	locationErr error
	navigated   []string
	reloads     int
	cleared     int
	cookies     []models.CookieRecord
	added       []models.CookieRecord
	onNavigate  func(url string)
	onClick     func(selector string) error
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
	return s.location, s.locationErr
}

func (s *stubSession) Reload(context.Context) error {
	s.reloads++
	return nil
}

func (s *stubSession) WaitFor(_ context.Context, _ string, _ time.Duration) ([]interfaces.Element, error) {
	return []interfaces.Element{stubElement{}}, nil
}

func (s *stubSession) Find(context.Context, string) (interfaces.Element, bool, error) {
	return nil, false, nil
}

func (s *stubSession) Click(_ context.Context, selector string) error {
	if s.onClick != nil {
		return s.onClick(selector)
	}
	return nil
}

func (s *stubSession) Cookies(context.Context) ([]models.CookieRecord, error) {
	return s.cookies, nil
}

func (s *stubSession) AddCookie(_ context.Context, cookie models.CookieRecord) error {
	s.added = append(s.added, cookie)
	return nil
}

func (s *stubSession) ClearCookies(context.Context) error {
	s.cleared++
	return nil
}

func (s *stubSession) CaptureViewport(context.Context) ([]byte, error) {
	return []byte{}, nil
}

func (s *stubSession) Close() error {
	return nil
}

type stubElement struct{}

func (stubElement) Text() (string, bool)                   { return "", false }
func (stubElement) Attr(string) (string, bool)             { return "", false }
func (stubElement) Find(string) (interfaces.Element, bool) { return nil, false }
