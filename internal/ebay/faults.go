package ebay

import (
	"errors"
	"fmt"
)

// ErrCookiesNotFound indicates no cookies have been persisted for a key.
// Recoverable: the guard treats it as "no valid session state".
var ErrCookiesNotFound = errors.New("no persisted cookies")

// DecodeFault indicates the persisted cookie file exists but cannot be
// decoded. The guard treats it the same as a missing file, but it is
// surfaced distinctly so corruption gets reported.
type DecodeFault struct {
	Path string
	Err  error
}

func (f *DecodeFault) Error() string {
	return fmt.Sprintf("corrupt cookie file %s: %v", f.Path, f.Err)
}

func (f *DecodeFault) Unwrap() error {
	return f.Err
}

// AntiBotFault indicates the site served its hard rate-limit page. It
// aborts only the task that observed it.
type AntiBotFault struct {
	Location string
}

func (f *AntiBotFault) Error() string {
	return fmt.Sprintf("request limit exceeded at %s", f.Location)
}
