package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vendo/internal/models"
)

// Element is a read-only handle on a DOM element. Reads are
// optional-returning: a missing element or attribute is reported as
// absent, never as an error.
type Element interface {
	// Text returns the trimmed text content
	Text() (string, bool)

	// Attr returns the named attribute's value
	Attr(name string) (string, bool)

	// Find returns the first descendant matching the selector
	Find(selector string) (Element, bool)
}

// Session is one controllable browsing context. The engine treats it as an
// opaque capability; implementations own the underlying rendering engine.
type Session interface {
	// Navigate loads the given URL
	Navigate(ctx context.Context, url string) error

	// Location returns the current URL. An error indicates the browsing
	// context is gone (e.g. the window was closed).
	Location(ctx context.Context) (string, error)

	// Reload re-navigates to the current location
	Reload(ctx context.Context) error

	// WaitFor blocks until at least one element matches the selector,
	// returning all matches. Returns ErrWaitTimeout-wrapping errors when
	// the timeout elapses first.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) ([]Element, error)

	// Find returns the first element matching the selector, if any
	Find(ctx context.Context, selector string) (Element, bool, error)

	// Click dispatches a click on the first element matching the selector
	Click(ctx context.Context, selector string) error

	// Cookies returns the session's current cookies
	Cookies(ctx context.Context) ([]models.CookieRecord, error)

	// AddCookie injects one cookie into the session
	AddCookie(ctx context.Context, cookie models.CookieRecord) error

	// ClearCookies removes all cookies from the session
	ClearCookies(ctx context.Context) error

	// CaptureViewport returns a screenshot of the current viewport
	CaptureViewport(ctx context.Context) ([]byte, error)

	// Close tears down the browsing context
	Close() error
}

// SessionFactory creates browsing contexts. Pooled sessions are headless;
// interactive sessions are visible so a person can complete a login.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
	NewInteractiveSession(ctx context.Context) (Session, error)
}
