package models

// CookieRecord is one persisted authentication cookie. The JSON shape is
// the on-disk format of the cookie store, so the file stays readable and
// editable by hand.
type CookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expiry,omitempty"` // Unix seconds, 0 = session cookie
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	SameSite string  `json:"sameSite,omitempty"` // "strict", "lax" or "none"
}
