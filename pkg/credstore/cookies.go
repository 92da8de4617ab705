package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/net/publicsuffix"
)

// Cookie names issued by the backend for SSO sessions.
const (
	XSRFCookie          = "XSRF-TOKEN"
	AuthorizationCookie = "authorization"
)

// CookiesKey is the storage key under which Save keeps the session cookies.
const CookiesKey = "App_Cookies"

var tracked = []string{XSRFCookie, AuthorizationCookie}

// CookieTokens is the cookie jar shared by every client talking to the backend, with
// accessors for the tokens the session cares about.
type CookieTokens struct {
	jar  *cookiejar.Jar
	base *url.URL
}

// NewCookieTokens returns an empty jar for the backend at baseURL.
func NewCookieTokens(baseURL string) (*CookieTokens, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &CookieTokens{jar: jar, base: base}, nil
}

// Jar returns the underlying jar, to be set on an http.Client.
func (c *CookieTokens) Jar() http.CookieJar { return c.jar }

func (c *CookieTokens) get(name string) string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// XSRFToken returns the current XSRF-TOKEN cookie value, or "".
func (c *CookieTokens) XSRFToken() string { return c.get(XSRFCookie) }

// Import sets a cookie for the backend, as if the backend had issued it.
func (c *CookieTokens) Import(name, value string) {
	c.jar.SetCookies(c.base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Clear expires the session cookies.
func (c *CookieTokens) Clear() {
	expired := make([]*http.Cookie, 0, len(tracked))
	for _, name := range tracked {
		expired = append(expired, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
	c.jar.SetCookies(c.base, expired)
}

// AccessTokenExpiry reads the exp claim of the authorization cookie. The token is not
// verified; the result is only used for diagnostics.
func (c *CookieTokens) AccessTokenExpiry() (time.Time, bool) {
	raw := c.get(AuthorizationCookie)
	if raw == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Save writes the session cookies to s, or removes the entry when there are none.
func (c *CookieTokens) Save(ctx context.Context, s Storage) error {
	values := make(map[string]string, len(tracked))
	for _, name := range tracked {
		if v := c.get(name); v != "" {
			values[name] = v
		}
	}
	if len(values) == 0 {
		return s.Remove(ctx, CookiesKey)
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return s.Set(ctx, CookiesKey, string(raw))
}

// Restore imports cookies previously written by Save. A missing entry is not an error.
func (c *CookieTokens) Restore(ctx context.Context, s Storage) error {
	raw, err := s.Get(ctx, CookiesKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return fmt.Errorf("%w: %s", ErrCorrupt, CookiesKey)
	}
	for _, name := range tracked {
		if v, ok := values[name]; ok && v != "" {
			c.Import(name, v)
		}
	}
	return nil
}
