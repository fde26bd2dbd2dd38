package browsercontext

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// NormalizeCookies resolves every write request into its canonical form: a
// request carrying a URL gets its domain, path and secure flag derived from
// it. Requests are checked in order and the first invalid one fails the whole
// batch. The input slice and its elements are left untouched.
func NormalizeCookies(cookies []models.SetCookieParam) ([]models.SetCookieParam, error) {
	out := make([]models.SetCookieParam, len(cookies))
	for i, c := range cookies {
		n, err := normalizeCookie(i, c)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func normalizeCookie(i int, c models.SetCookieParam) (models.SetCookieParam, error) {
	field := fmt.Sprintf("cookies[%d]", i)

	switch {
	case c.Name == "":
		return c, &ValidationError{Field: field + ".name", Rule: "missing name: cookie should have a name"}
	case c.Value == "":
		return c, &ValidationError{
			Field: field + ".value",
			Rule:  fmt.Sprintf("missing value: cookie %q should have a value", c.Name),
		}
	case c.URL == "" && (c.Domain == "" || c.Path == ""):
		return c, &ValidationError{
			Field: field,
			Rule:  fmt.Sprintf("missing scope: cookie %q should have a url or a domain/path pair", c.Name),
		}
	case c.URL != "" && (c.Domain != "" || c.Path != ""):
		return c, &ValidationError{
			Field: field,
			Rule:  fmt.Sprintf("ambiguous scope: cookie %q should have either url or domain/path", c.Name),
		}
	}

	if c.URL == "" {
		return c, nil
	}

	if c.URL == "about:blank" {
		return c, &ValidationError{
			Field: field + ".url",
			Value: c.URL,
			Rule:  fmt.Sprintf("blank page can not have cookie %q", c.Name),
		}
	}
	if strings.HasPrefix(strings.ToLower(c.URL), "data:") {
		return c, &ValidationError{
			Field: field + ".url",
			Value: c.URL,
			Rule:  fmt.Sprintf("data URL page can not have cookie %q", c.Name),
		}
	}

	u, err := parseAbsoluteURL(c.URL)
	if err != nil {
		return c, &ValidationError{
			Field: field + ".url",
			Value: c.URL,
			Rule:  fmt.Sprintf("cookie %q: %v", c.Name, err),
		}
	}

	path := urlPath(u)
	secure := u.Scheme == "https"
	c.Domain = u.Hostname()
	c.Path = path[:strings.LastIndex(path, "/")+1]
	c.Secure = &secure

	return c, nil
}

// FilterCookies returns the cookies visible to at least one of urls. A cookie
// matches a URL when the host equals its domain, the URL path starts with its
// path and the scheme's security equals its secure flag. Without urls every
// cookie is returned.
func FilterCookies(cookies []models.Cookie, urls ...string) ([]models.Cookie, error) {
	targets, err := parseTargetURLs(urls)
	if err != nil {
		return nil, err
	}
	return filterCookies(cookies, targets), nil
}

func parseTargetURLs(urls []string) ([]*url.URL, error) {
	targets := make([]*url.URL, 0, len(urls))
	for i, raw := range urls {
		u, err := parseAbsoluteURL(raw)
		if err != nil {
			return nil, &ValidationError{
				Field: fmt.Sprintf("urls[%d]", i),
				Value: raw,
				Rule:  err.Error(),
			}
		}
		targets = append(targets, u)
	}
	return targets, nil
}

func filterCookies(cookies []models.Cookie, targets []*url.URL) []models.Cookie {
	if len(targets) == 0 {
		return cookies
	}

	filtered := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		for _, u := range targets {
			if cookieMatches(c, u) {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered
}

func cookieMatches(c models.Cookie, u *url.URL) bool {
	if u.Hostname() != c.Domain {
		return false
	}
	if !strings.HasPrefix(urlPath(u), c.Path) {
		return false
	}
	return (u.Scheme == "https") == c.Secure
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("malformed url: must be absolute with a scheme and host")
	}
	return u, nil
}

// urlPath returns the escaped path of u, or "/" when it has none.
func urlPath(u *url.URL) string {
	if p := u.EscapedPath(); p != "" {
		return p
	}
	return "/"
}
