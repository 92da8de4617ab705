package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Backend is the contract the session layer consumes. SDKClient implements it over
// HTTP; tests substitute fakes.
type Backend interface {
	// CurrentUser validates cred and returns the identity it belongs to.
	CurrentUser(ctx context.Context, cred Credential) (*CurrentUser, error)
	// CurrentTenant returns the tenant cred is scoped to.
	CurrentTenant(ctx context.Context, cred Credential) (*TenantInfo, error)
	// LoginOptions lists the login schemes offered by the tenant. No credential needed.
	LoginOptions(ctx context.Context) ([]LoginOption, error)
	// OAuthDescriptor returns the SSO issuer. Only meaningful for cookie sessions.
	OAuthDescriptor(ctx context.Context, cred Credential) (*OAuthDescriptor, error)
	// Logout terminates the server-side session for cred.
	Logout(ctx context.Context, cred Credential) error
}

// XSRFSource supplies the XSRF token issued by the backend as a cookie.
type XSRFSource interface {
	XSRFToken() string
}

var _ Backend = (*SDKClient)(nil)

// SDKClient is an HTTP client for the platform's identity endpoints.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// Tokens provides the XSRF token for requests made with a CookieCredential.
	// The HTTPClient should share its cookie jar with Tokens so the session cookie
	// itself travels with the request.
	Tokens XSRFSource
}

// NewSDKClient creates a client with a 10 second request timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CurrentUser calls GET /user/currentUser with cred. A 401 or 403 is reported as
// ErrInvalidCredentials.
func (c *SDKClient) CurrentUser(ctx context.Context, cred Credential) (*CurrentUser, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/user/currentUser", nil, cred)
	if err != nil {
		return nil, err
	}

	var user CurrentUser
	if err := decodeJSON(resp, &user, http.StatusOK, classifyLogin); err != nil {
		return nil, err
	}

	return &user, nil
}

// CurrentTenant calls GET /tenant/currentTenant with cred.
func (c *SDKClient) CurrentTenant(ctx context.Context, cred Credential) (*TenantInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/tenant/currentTenant", nil, cred)
	if err != nil {
		return nil, err
	}

	var tenant TenantInfo
	if err := decodeJSON(resp, &tenant, http.StatusOK, classifySession); err != nil {
		return nil, err
	}

	return &tenant, nil
}

// LoginOptions calls GET /tenant/loginOptions. Any non-200 response is reported as
// ErrOptionsFetch.
func (c *SDKClient) LoginOptions(ctx context.Context) ([]LoginOption, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/tenant/loginOptions", nil, nil)
	if err != nil {
		return nil, err
	}

	var body loginOptionsResponse
	if err := decodeJSON(resp, &body, http.StatusOK, classifyOptions); err != nil {
		return nil, err
	}

	return body.LoginOptions, nil
}

// OAuthDescriptor calls GET /tenant/loginOptions/oauth2 with cred. Any non-200 response
// is reported as ErrOptionsFetch.
func (c *SDKClient) OAuthDescriptor(ctx context.Context, cred Credential) (*OAuthDescriptor, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/tenant/loginOptions/oauth2", nil, cred)
	if err != nil {
		return nil, err
	}

	var desc OAuthDescriptor
	if err := decodeJSON(resp, &desc, http.StatusOK, classifyOptions); err != nil {
		return nil, err
	}

	return &desc, nil
}

// Logout calls POST /user/logout with cred. Both 200 and 204 count as success.
func (c *SDKClient) Logout(ctx context.Context, cred Credential) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/user/logout", nil, cred)
	if err != nil {
		return err
	}

	return checkStatusOK(resp, classifySession)
}
