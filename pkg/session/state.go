package session

import "github.com/aussiebroadwan/tenantauth/pkg/authsdk"

// Scheme is the active credential kind.
type Scheme string

const (
	SchemeNone   Scheme = ""
	SchemeOAuth2 Scheme = Scheme(authsdk.AuthTypeOAuth2)
	SchemeBasic  Scheme = Scheme(authsdk.AuthTypeBasic)
)

// String returns the scheme name, "NONE" for SchemeNone.
func (s Scheme) String() string {
	if s == SchemeNone {
		return "NONE"
	}
	return string(s)
}

// State is a snapshot of the session. Scheme is SchemeNone exactly when Authenticated is
// false; TenantID and OAuthIssuer are only set on an authenticated session.
type State struct {
	Authenticated bool
	Scheme        Scheme
	User          *authsdk.CurrentUser
	TenantID      string

	// OAuthIssuer is the identity provider base URL, cookie sessions only
	OAuthIssuer string
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
