package session_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
)

type fakeBackend struct {
	user      authsdk.CurrentUser
	password  string
	tenant    string
	issuer    string
	options   []authsdk.LoginOption
	tenantErr error
	descErr   error
	optErr    error
	logoutErr error

	// gate, when set, blocks CurrentUser until closed
	gate chan struct{}

	currentUserCalls atomic.Int32
	tenantCalls      atomic.Int32
	optionsCalls     atomic.Int32
	logoutCalls      atomic.Int32

	mu        sync.Mutex
	loggedOut authsdk.Credential
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		user:     authsdk.CurrentUser{ID: "42", UserName: "jane", FirstName: "Jane", LastName: "Doe"},
		password: "secret",
		tenant:   "t1",
		issuer:   "https://idp.example.com/realms/t1",
		options:  []authsdk.LoginOption{{Type: authsdk.AuthTypeBasic}},
	}
}

func (f *fakeBackend) CurrentUser(_ context.Context, cred authsdk.Credential) (*authsdk.CurrentUser, error) {
	f.currentUserCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}

	switch c := cred.(type) {
	case authsdk.BasicCredential:
		if c.Username != f.user.UserName || c.Password != f.password {
			return nil, fmt.Errorf("rejected: %w", authsdk.ErrInvalidCredentials)
		}
	case authsdk.CookieCredential:
	default:
		return nil, fmt.Errorf("no credential: %w", authsdk.ErrInvalidCredentials)
	}

	u := f.user
	return &u, nil
}

func (f *fakeBackend) CurrentTenant(context.Context, authsdk.Credential) (*authsdk.TenantInfo, error) {
	f.tenantCalls.Add(1)
	if f.tenantErr != nil {
		return nil, f.tenantErr
	}
	return &authsdk.TenantInfo{Name: f.tenant}, nil
}

func (f *fakeBackend) LoginOptions(context.Context) ([]authsdk.LoginOption, error) {
	f.optionsCalls.Add(1)
	if f.optErr != nil {
		return nil, f.optErr
	}
	return f.options, nil
}

func (f *fakeBackend) OAuthDescriptor(_ context.Context, cred authsdk.Credential) (*authsdk.OAuthDescriptor, error) {
	if f.descErr != nil {
		return nil, f.descErr
	}
	if c, ok := cred.(authsdk.CookieCredential); !ok || c.UserID == "" {
		return nil, fmt.Errorf("descriptor needs an identified cookie session: %w", authsdk.ErrOptionsFetch)
	}
	return &authsdk.OAuthDescriptor{Issuer: f.issuer}, nil
}

func (f *fakeBackend) Logout(_ context.Context, cred authsdk.Credential) error {
	f.logoutCalls.Add(1)
	f.mu.Lock()
	f.loggedOut = cred
	f.mu.Unlock()
	return f.logoutErr
}

type fakeNavigator struct {
	current string

	mu      sync.Mutex
	visited []string
	reloads int
}

func (n *fakeNavigator) Navigate(_ context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visited = append(n.visited, url)
	return nil
}

func (n *fakeNavigator) Reload(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reloads++
	return nil
}

func (n *fakeNavigator) CurrentURL() string { return n.current }

func (n *fakeNavigator) snapshot() ([]string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visited...), n.reloads
}

type fakeCookies struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (c *fakeCookies) XSRFToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *fakeCookies) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.cleared++
}
