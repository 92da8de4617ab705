// Package transport stamps outgoing requests with the session's credential and
// recovers from expired SSO sessions with a single shared refresh.
package transport

import (
	"net/http"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
)

// Stamp returns req with the headers of the active scheme: the XSRF token for OAUTH2,
// the Authorization secret for BASIC, plus UseXBasic in both cases. Without a scheme or
// token req is returned as is. req is never modified.
func Stamp(req *http.Request, scheme session.Scheme, token string) *http.Request {
	if token == "" {
		return req
	}

	var header string
	switch scheme {
	case session.SchemeOAuth2:
		header = authsdk.HeaderXSRFToken
	case session.SchemeBasic:
		header = authsdk.HeaderAuthorization
	default:
		return req
	}

	out := req.Clone(req.Context())
	out.Header.Set(header, token)
	out.Header.Set(authsdk.HeaderUseXBasic, "true")
	return out
}
