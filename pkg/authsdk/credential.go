package authsdk

import (
	"encoding/base64"
	"net/http"
)

// Header names shared by the backend client and the request transport.
const (
	HeaderXSRFToken     = "X-XSRF-TOKEN"
	HeaderAuthorization = "Authorization"
	HeaderUseXBasic     = "UseXBasic"
)

// Credential is a closed set of credential kinds: CookieCredential or BasicCredential.
type Credential interface {
	isCredential()
}

// CookieCredential is a session held in cookies issued by the SSO flow. UserID is
// filled in once the backend has confirmed the session; logout needs it.
type CookieCredential struct {
	UserID string
}

// BasicCredential is a username/password pair.
type BasicCredential struct {
	Username string `json:"user"`
	Password string `json:"password"`
}

func (CookieCredential) isCredential() {}
func (BasicCredential) isCredential()  {}

// BasicSecret returns the Authorization header value for a tenant-qualified basic
// credential: "Basic " + base64("tenant/username:password").
func BasicSecret(tenant, username, password string) string {
	raw := tenant + "/" + username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// authorize sets the headers required by cred on req. A nil credential leaves req
// untouched.
func (c *SDKClient) authorize(req *http.Request, cred Credential) {
	switch cr := cred.(type) {
	case CookieCredential:
		if c.Tokens != nil {
			if token := c.Tokens.XSRFToken(); token != "" {
				req.Header.Set(HeaderXSRFToken, token)
			}
		}
		req.Header.Set(HeaderUseXBasic, "true")
	case BasicCredential:
		req.SetBasicAuth(cr.Username, cr.Password)
		req.Header.Set(HeaderUseXBasic, "true")
	case nil:
	}
}
