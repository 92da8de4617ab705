package authsdk

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticXSRF string

func (s staticXSRF) XSRFToken() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc) *SDKClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := NewSDKClient(srv.URL + "/")
	client.HTTPClient = srv.Client()
	return client
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	t.Run("basic credential", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/user/currentUser", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "jane", user)
			assert.Equal(t, "secret", pass)
			assert.Equal(t, "true", r.Header.Get(HeaderUseXBasic))
			assert.Empty(t, r.Header.Get(HeaderXSRFToken))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"42","userName":"jane","firstName":"Jane","lastName":"Doe"}`))
		})

		user, err := client.CurrentUser(context.Background(), BasicCredential{Username: "jane", Password: "secret"})
		require.NoError(t, err)
		require.Equal(t, "42", user.ID)
		require.Equal(t, "Jane Doe", user.DisplayName())
	})

	t.Run("cookie credential sends xsrf token", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "tok-1", r.Header.Get(HeaderXSRFToken))
			assert.Equal(t, "true", r.Header.Get(HeaderUseXBasic))
			assert.Empty(t, r.Header.Get(HeaderAuthorization))
			_, _ = w.Write([]byte(`{"id":"7","userName":"sso-user"}`))
		})
		client.Tokens = staticXSRF("tok-1")

		user, err := client.CurrentUser(context.Background(), CookieCredential{})
		require.NoError(t, err)
		require.Equal(t, "sso-user", user.UserName)
		require.Empty(t, user.DisplayName())
	})

	t.Run("rejected credential", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"security/Unauthorized","message":"Invalid credentials!"}`))
		})

		_, err := client.CurrentUser(context.Background(), BasicCredential{Username: "jane", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		require.Equal(t, "security/Unauthorized", apiErr.Code)
		require.Equal(t, "Invalid credentials!", ErrorMessage(err))
	})
}

func TestLoginOptions(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/tenant/loginOptions", r.URL.Path)
			assert.Empty(t, r.Header.Get(HeaderAuthorization))
			_, _ = w.Write([]byte(`{"loginOptions":[
				{"type":"BASIC"},
				{"type":"OAUTH2","initRequest":"https://idp.example.com/auth?tenant=t1"},
				{"type":"OAUTH2","initRequest":"https://other.example.com/auth"}
			]}`))
		})

		options, err := client.LoginOptions(context.Background())
		require.NoError(t, err)
		require.Len(t, options, 3)

		sso, ok := FirstOAuth2(options)
		require.True(t, ok)
		require.Equal(t, "https://idp.example.com/auth?tenant=t1", sso.InitRequest)
	})

	t.Run("non 200 is an options failure", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.LoginOptions(context.Background())
		require.ErrorIs(t, err, ErrOptionsFetch)
		require.Empty(t, ErrorMessage(err))
		require.Contains(t, err.Error(), "Service Unavailable")
	})
}

func TestOAuthDescriptor(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenant/loginOptions/oauth2", r.URL.Path)
		_, _ = w.Write([]byte(`{"issuer":"https://idp.example.com/realms/t1"}`))
	})

	desc, err := client.OAuthDescriptor(context.Background(), CookieCredential{UserID: "7"})
	require.NoError(t, err)
	require.Equal(t, "https://idp.example.com/realms/t1", desc.Issuer)
}

func TestCurrentTenantExpired(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.CurrentTenant(context.Background(), CookieCredential{})
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	var called atomic.Bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/user/logout", r.URL.Path)
		called.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.Logout(context.Background(), CookieCredential{UserID: "7"}))
	require.True(t, called.Load())
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	client := NewSDKClient(srv.URL)
	srv.Close()

	_, err := client.LoginOptions(context.Background())
	require.ErrorIs(t, err, ErrTransport)

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	require.Equal(t, "GET /tenant/loginOptions", tErr.Op)
}

func TestBasicSecret(t *testing.T) {
	t.Parallel()

	secret := BasicSecret("t1", "jane", "p:ss")
	raw, err := base64.StdEncoding.DecodeString(secret[len("Basic "):])
	require.NoError(t, err)
	require.Equal(t, "t1/jane:p:ss", string(raw))
}
