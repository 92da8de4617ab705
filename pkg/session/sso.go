package session

import (
	"context"
	"net/url"
	"strings"
)

// SSOQueryParam is the query parameter that asks for SSO entry at startup.
const SSOQueryParam = "sso"

type ssoHintKey struct{}

// WithSSOHint records whether the caller explicitly asked for SSO entry.
func WithSSOHint(ctx context.Context, sso bool) context.Context {
	return context.WithValue(ctx, ssoHintKey{}, sso)
}

// SSOHintFromContext reports the hint set by WithSSOHint.
func SSOHintFromContext(ctx context.Context) bool {
	sso, _ := ctx.Value(ssoHintKey{}).(bool)
	return sso
}

// SSOHintFromQuery reports whether q carries sso=true, case-insensitively.
func SSOHintFromQuery(q url.Values) bool {
	return strings.EqualFold(q.Get(SSOQueryParam), "true")
}

// AuthorizationURL appends the originUri parameter to an SSO initRequest URL. The
// initRequest issued by the backend already carries a query string.
func AuthorizationURL(initRequest, origin string) string {
	return initRequest + "&originUri=" + url.QueryEscape(origin)
}

// LogoutURL builds the identity provider logout URL that returns to redirect.
func LogoutURL(issuer, redirect string) string {
	return strings.TrimSuffix(issuer, "/") + "/protocol/openid-connect/logout?redirect_uri=" + url.QueryEscape(redirect)
}
