package models

// Default viewport applied when a context is created without one.
const (
	DefaultViewportWidth  = 800
	DefaultViewportHeight = 600
)

// Viewport is the size of the emulated page area in CSS pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Geolocation is an emulated position reported to pages
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// PermissionGrant grants a set of permissions to a single origin
type PermissionGrant struct {
	Origin      string   `json:"origin"`
	Permissions []string `json:"permissions"`
}

// ColorScheme is the emulated prefers-color-scheme media feature
type ColorScheme string

const (
	ColorSchemeLight        ColorScheme = "light"
	ColorSchemeDark         ColorScheme = "dark"
	ColorSchemeNoPreference ColorScheme = "no-preference"
)

// ContextOptions configures an isolated browsing context.
//
// A context keeps its own deep copy of the options it was created with, so the
// caller may reuse or mutate the value it passed in.
type ContextOptions struct {
	Viewport          *Viewport         `json:"viewport,omitempty"`
	Geolocation       *Geolocation      `json:"geolocation,omitempty"`
	Permissions       []PermissionGrant `json:"permissions,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	Locale            string            `json:"locale,omitempty"`
	TimezoneID        string            `json:"timezoneId,omitempty"`
	ColorScheme       ColorScheme       `json:"colorScheme,omitempty"`
	ExtraHTTPHeaders  map[string]string `json:"extraHTTPHeaders,omitempty"`
	DeviceScaleFactor float64           `json:"deviceScaleFactor,omitempty"`
	IsMobile          bool              `json:"isMobile,omitempty"`
	HasTouch          bool              `json:"hasTouch,omitempty"`
	Offline           bool              `json:"offline,omitempty"`
	IgnoreHTTPSErrors bool              `json:"ignoreHTTPSErrors,omitempty"`
	BypassCSP         bool              `json:"bypassCSP,omitempty"`
}

// Clone returns a deep copy of the options. A nil receiver yields empty options.
func (o *ContextOptions) Clone() *ContextOptions {
	if o == nil {
		return &ContextOptions{}
	}

	c := *o
	if o.Viewport != nil {
		v := *o.Viewport
		c.Viewport = &v
	}
	if o.Geolocation != nil {
		g := *o.Geolocation
		c.Geolocation = &g
	}
	if o.Permissions != nil {
		c.Permissions = make([]PermissionGrant, len(o.Permissions))
		for i, p := range o.Permissions {
			c.Permissions[i] = PermissionGrant{
				Origin:      p.Origin,
				Permissions: append([]string(nil), p.Permissions...),
			}
		}
	}
	if o.ExtraHTTPHeaders != nil {
		c.ExtraHTTPHeaders = make(map[string]string, len(o.ExtraHTTPHeaders))
		for k, v := range o.ExtraHTTPHeaders {
			c.ExtraHTTPHeaders[k] = v
		}
	}

	return &c
}
