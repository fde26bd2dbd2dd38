package chromium

import (
	"fmt"
	"math"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

var permsToProtocol = map[string]cdpbrowser.PermissionType{
	"geolocation":          cdpbrowser.PermissionTypeGeolocation,
	"midi":                 cdpbrowser.PermissionTypeMidi,
	"midi-sysex":           cdpbrowser.PermissionTypeMidiSysex,
	"notifications":        cdpbrowser.PermissionTypeNotifications,
	"camera":               cdpbrowser.PermissionTypeVideoCapture,
	"microphone":           cdpbrowser.PermissionTypeAudioCapture,
	"background-sync":      cdpbrowser.PermissionTypeBackgroundSync,
	"ambient-light-sensor": cdpbrowser.PermissionTypeSensors,
	"accelerometer":        cdpbrowser.PermissionTypeSensors,
	"gyroscope":            cdpbrowser.PermissionTypeSensors,
	"magnetometer":         cdpbrowser.PermissionTypeSensors,
	"clipboard-read":       cdpbrowser.PermissionTypeClipboardReadWrite,
	"clipboard-write":      cdpbrowser.PermissionTypeClipboardSanitizedWrite,
	"payment-handler":      cdpbrowser.PermissionTypePaymentHandler,
}

func permissionTypes(permissions []string) ([]cdpbrowser.PermissionType, error) {
	perms := make([]cdpbrowser.PermissionType, 0, len(permissions))
	for _, p := range permissions {
		pt, ok := permsToProtocol[p]
		if !ok {
			return nil, fmt.Errorf("unknown permission: %q", p)
		}
		perms = append(perms, pt)
	}
	return perms, nil
}

func fromNetworkCookies(cookies []*network.Cookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: models.SameSite(c.SameSite.String()),
		})
	}
	return out
}

func toCookieParams(cookies []models.SetCookieParam) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.IsSecure(),
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Domain == "" {
			p.URL = c.URL
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*float64(time.Second))))
			p.Expires = &expires
		}
		params = append(params, p)
	}
	return params
}

// emulationActions returns the per-page overrides described by o.
func emulationActions(o *models.ContextOptions) []chromedp.Action {
	var actions []chromedp.Action

	if o.Viewport != nil {
		scale := o.DeviceScaleFactor
		if scale == 0 {
			scale = 1
		}
		actions = append(actions, emulation.SetDeviceMetricsOverride(
			int64(o.Viewport.Width), int64(o.Viewport.Height), scale, o.IsMobile))
	}
	if o.UserAgent != "" {
		ua := emulation.SetUserAgentOverride(o.UserAgent)
		if o.Locale != "" {
			ua = ua.WithAcceptLanguage(o.Locale)
		}
		actions = append(actions, ua)
	}
	if o.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(o.Locale))
	}
	if o.TimezoneID != "" {
		actions = append(actions, emulation.SetTimezoneOverride(o.TimezoneID))
	}
	if o.HasTouch {
		actions = append(actions, emulation.SetTouchEmulationEnabled(true))
	}
	if o.ColorScheme != "" {
		actions = append(actions, emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
			{Name: "prefers-color-scheme", Value: string(o.ColorScheme)},
		}))
	}
	if o.Geolocation != nil {
		actions = append(actions, geolocationAction(o.Geolocation))
	}
	if len(o.ExtraHTTPHeaders) > 0 {
		headers := make(network.Headers, len(o.ExtraHTTPHeaders))
		for k, v := range o.ExtraHTTPHeaders {
			headers[k] = v
		}
		actions = append(actions, network.Enable(), network.SetExtraHTTPHeaders(headers))
	}
	if o.Offline {
		actions = append(actions, network.Enable(), network.EmulateNetworkConditions(true, 0, -1, -1))
	}
	if o.IgnoreHTTPSErrors {
		actions = append(actions, security.SetIgnoreCertificateErrors(true))
	}
	if o.BypassCSP {
		actions = append(actions, cdppage.SetBypassCSP(true))
	}

	return actions
}
