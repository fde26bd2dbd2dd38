package playwright

import (
	"github.com/playwright-community/playwright-go"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

func fromPlaywrightCookies(cookies []playwright.Cookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		mc := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			mc.SameSite = models.SameSite(*c.SameSite)
		}
		out = append(out, mc)
	}
	return out
}

func toOptionalCookies(cookies []models.SetCookieParam) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.IsSecure()),
		}
		// playwright rejects url together with domain or path
		if c.Domain != "" {
			oc.Domain = playwright.String(c.Domain)
			oc.Path = playwright.String(c.Path)
		} else {
			oc.URL = playwright.String(c.URL)
		}
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.SameSite != "" {
			ss := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &ss
		}
		out = append(out, oc)
	}
	return out
}
