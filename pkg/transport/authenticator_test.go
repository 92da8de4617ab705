package transport_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/aussiebroadwan/tenantauth/pkg/transport"
	"github.com/stretchr/testify/require"
)

func TestStamp(t *testing.T) {
	t.Parallel()

	newReq := func(t *testing.T) *http.Request {
		req, err := http.NewRequest(http.MethodGet, "https://tenant.example.com/service/items", nil)
		require.NoError(t, err)
		return req
	}

	t.Run("oauth2 sets the xsrf token", func(t *testing.T) {
		t.Parallel()
		req := newReq(t)

		out := transport.Stamp(req, session.SchemeOAuth2, "xsrf-1")
		require.Equal(t, "xsrf-1", out.Header.Get(authsdk.HeaderXSRFToken))
		require.Equal(t, "true", out.Header.Get(authsdk.HeaderUseXBasic))
		require.Empty(t, out.Header.Get(authsdk.HeaderAuthorization))
		require.Empty(t, req.Header, "input must not be mutated")
	})

	t.Run("basic sets authorization", func(t *testing.T) {
		t.Parallel()
		req := newReq(t)
		secret := authsdk.BasicSecret("t1", "jane", "secret")

		out := transport.Stamp(req, session.SchemeBasic, secret)
		require.Equal(t, secret, out.Header.Get(authsdk.HeaderAuthorization))
		require.Equal(t, "true", out.Header.Get(authsdk.HeaderUseXBasic))
		require.Empty(t, out.Header.Get(authsdk.HeaderXSRFToken))
		require.Empty(t, req.Header)
	})

	t.Run("passes through without scheme or token", func(t *testing.T) {
		t.Parallel()
		req := newReq(t)

		require.Same(t, req, transport.Stamp(req, session.SchemeNone, "xsrf-1"))
		require.Same(t, req, transport.Stamp(req, session.SchemeOAuth2, ""))
		require.Same(t, req, transport.Stamp(req, session.SchemeBasic, ""))
	})
}
