package schemas

import "time"

// Credentials identify the seller account. The core only ever reads them.
type Credentials struct {
	Account string
	Secret  string
}

// String keeps the secret out of logs and panics.
func (c Credentials) String() string {
	return "Credentials{Account: " + c.Account + ", Secret: [redacted]}"
}

// Valid reports whether both halves of the credential pair are present.
func (c Credentials) Valid() bool {
	return c.Account != "" && c.Secret != ""
}

// Cookie is a serialisable snapshot of a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// Session is an authenticated browser session for one account.
type Session struct {
	SessionID     string    `json:"session_id"`
	Account       string    `json:"account"`
	EstablishedAt time.Time `json:"established_at"`
	Active        bool      `json:"active"`
	Cookies       []Cookie  `json:"-"`
}

// Expired reports whether the session is older than maxAge. A non-positive
// maxAge never expires.
func (s *Session) Expired(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(s.EstablishedAt) > maxAge
}
