package session_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/stretchr/testify/require"
)

type loggedIn bool

func (l loggedIn) IsLoggedIn() bool { return bool(l) }

func TestGuard(t *testing.T) {
	t.Parallel()

	t.Run("allows authenticated", func(t *testing.T) {
		t.Parallel()
		nav := &fakeNavigator{}
		require.True(t, session.Guard{Session: loggedIn(true), Navigator: nav}.Allow(context.Background()))
		visited, _ := nav.snapshot()
		require.Empty(t, visited)
	})

	t.Run("denies and redirects to default login path", func(t *testing.T) {
		t.Parallel()
		nav := &fakeNavigator{}
		require.False(t, session.Guard{Session: loggedIn(false), Navigator: nav}.Allow(context.Background()))
		visited, _ := nav.snapshot()
		require.Equal(t, []string{session.DefaultLoginPath}, visited)
	})

	t.Run("custom login path", func(t *testing.T) {
		t.Parallel()
		nav := &fakeNavigator{}
		g := session.Guard{Session: loggedIn(false), Navigator: nav, LoginPath: "/signin"}
		require.False(t, g.Allow(context.Background()))
		visited, _ := nav.snapshot()
		require.Equal(t, []string{"/signin"}, visited)
	})

	t.Run("reads the manager", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		g := session.Guard{Session: h.mgr, Navigator: h.nav}
		require.False(t, g.Allow(context.Background()))

		_, err := h.mgr.PerformBasicAuthLogin(context.Background(), "jane", "secret")
		require.NoError(t, err)
		require.True(t, g.Allow(context.Background()))
	})
}

func TestSSOHint(t *testing.T) {
	t.Parallel()

	require.True(t, session.SSOHintFromQuery(url.Values{"sso": {"TRUE"}}))
	require.True(t, session.SSOHintFromQuery(url.Values{"sso": {"true"}}))
	require.False(t, session.SSOHintFromQuery(url.Values{"sso": {"yes"}}))
	require.False(t, session.SSOHintFromQuery(url.Values{}))

	require.False(t, session.SSOHintFromContext(context.Background()))
	require.True(t, session.SSOHintFromContext(session.WithSSOHint(context.Background(), true)))
}

func TestLogoutURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://idp/realms/t1/protocol/openid-connect/logout?redirect_uri=https%3A%2F%2Fapp%2F",
		session.LogoutURL("https://idp/realms/t1/", "https://app/"))
}

func TestLoginErrorMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Invalid credentials!", session.LoginErrorMessage(&authsdk.APIError{StatusCode: 401, Message: "Invalid credentials!"}))
	require.Equal(t, "An error occurred while logging in.", session.LoginErrorMessage(&authsdk.APIError{StatusCode: 500}))
	require.Equal(t, "An error occurred while logging in.", session.LoginErrorMessage(authsdk.ErrTransport))
	require.NotEqual(t, "An error occurred while logging in.", session.LoginErrorMessage(session.ErrLoginThrottled))
}
