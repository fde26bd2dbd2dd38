package models

// SameSite is the cookie's SameSite attribute.
//
// https://tools.ietf.org/html/draft-west-first-party-cookies.
type SameSite string

const (
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// Cookie is a cookie as stored by the browser engine.
//
// https://datatracker.ietf.org/doc/html/rfc6265.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  float64  `json:"expires"` // seconds since the UNIX epoch, -1 for session cookies
	HTTPOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
	SameSite SameSite `json:"sameSite,omitempty"`
}

// SetCookieParam is a request to write a cookie.
//
// Either URL or both Domain and Path must be given. Secure is optional and is
// derived from the URL scheme when URL is set.
type SetCookieParam struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	URL      string   `json:"url,omitempty"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
	Expires  float64  `json:"expires,omitempty"`
	HTTPOnly bool     `json:"httpOnly,omitempty"`
	Secure   *bool    `json:"secure,omitempty"`
	SameSite SameSite `json:"sameSite,omitempty"`
}

// IsSecure reports the Secure flag, treating an unset flag as false.
func (p SetCookieParam) IsSecure() bool {
	return p.Secure != nil && *p.Secure
}
