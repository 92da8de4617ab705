package authsdk

import "strings"

// ============================================================================
// Identity Types
// ============================================================================

// CurrentUser is the response of GET /user/currentUser.
type CurrentUser struct {
	// ID is the backend's identifier for the user
	ID string `json:"id"`

	// UserName is the login name
	UserName string `json:"userName"`

	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`

	// Self is the canonical URL of the user resource
	Self string `json:"self,omitempty"`
}

// DisplayName returns "First Last" when both names are known, otherwise "".
func (u *CurrentUser) DisplayName() string {
	if u == nil || u.FirstName == "" || u.LastName == "" {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// TenantInfo is the response of GET /tenant/currentTenant.
type TenantInfo struct {
	// Name is the tenant ID used to qualify basic credentials
	Name string `json:"name"`

	DomainName string `json:"domainName,omitempty"`
}

// ============================================================================
// Login Option Types
// ============================================================================

// AuthType names a login scheme offered by the tenant.
type AuthType string

const (
	AuthTypeOAuth2 AuthType = "OAUTH2"
	AuthTypeBasic  AuthType = "BASIC"
)

// LoginOption describes one login scheme. InitRequest is the SSO authorization URL
// for OAUTH2 options and empty otherwise.
type LoginOption struct {
	Type        AuthType `json:"type"`
	InitRequest string   `json:"initRequest,omitempty"`
}

type loginOptionsResponse struct {
	LoginOptions []LoginOption `json:"loginOptions"`
}

// FirstOAuth2 returns the first OAUTH2 option, which is the canonical SSO descriptor.
func FirstOAuth2(options []LoginOption) (LoginOption, bool) {
	for _, opt := range options {
		if opt.Type == AuthTypeOAuth2 {
			return opt, true
		}
	}
	return LoginOption{}, false
}

// OAuthDescriptor is the response of GET /tenant/loginOptions/oauth2.
type OAuthDescriptor struct {
	// Issuer is the identity provider base URL, used to build the SSO logout URL
	Issuer string `json:"issuer"`
}

// ============================================================================
// Error Payload
// ============================================================================

// ErrorResponse is the error body returned by the platform.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Info    string `json:"info,omitempty"`
}
