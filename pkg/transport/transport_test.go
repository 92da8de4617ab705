package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/aussiebroadwan/tenantauth/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	scheme session.Scheme
	secret string

	mu       sync.Mutex
	token    string
	reported []error
	expired  int
}

func (s *fakeSession) Scheme() session.Scheme { return s.scheme }
func (s *fakeSession) BasicSecret() string    { return s.secret }

func (s *fakeSession) XSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) setToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
}

func (s *fakeSession) HandleSessionExpired(_ *http.Request, _ *http.Response, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported = append(s.reported, err)
}

func (s *fakeSession) MarkExpired(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired++
}

func (s *fakeSession) snapshot() ([]error, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.reported...), s.expired
}

// xsrfServer answers 401 unless the request carries the accepted XSRF token.
type xsrfServer struct {
	accepted atomic.Value
	stale    atomic.Int32
	fresh    atomic.Int32
	bodies   chan string
}

func newXSRFServer(t *testing.T, accepted string) (*xsrfServer, *httptest.Server) {
	t.Helper()
	x := &xsrfServer{bodies: make(chan string, 64)}
	x.accepted.Store(accepted)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			b, _ := io.ReadAll(r.Body)
			if len(b) > 0 {
				x.bodies <- string(b)
			}
		}
		if r.Header.Get(authsdk.HeaderXSRFToken) != x.accepted.Load().(string) {
			x.stale.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		x.fresh.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return x, srv
}

func TestConcurrentExpiryTriggersOneRefresh(t *testing.T) {
	t.Parallel()

	const requests = 6
	x, srv := newXSRFServer(t, "fresh")
	sess := &fakeSession{scheme: session.SchemeOAuth2, token: "stale"}

	var probes atomic.Int32
	coord := &transport.Coordinator{Logger: discard}
	coord.Probe = func(context.Context) error {
		probes.Add(1)
		deadline := time.Now().Add(2 * time.Second)
		for coord.Waiters() < requests-1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		sess.setToken("fresh")
		return nil
	}

	client := &http.Client{Transport: &transport.Transport{
		Session:     sess,
		Coordinator: coord,
		Base:        srv.Client().Transport,
		Logger:      discard,
	}}

	var wg sync.WaitGroup
	statuses := make(chan int, requests)
	for range requests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/service/items")
			if !assert.NoError(t, err) {
				return
			}
			_ = resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		require.Equal(t, http.StatusOK, status)
	}
	require.EqualValues(t, 1, probes.Load())
	require.EqualValues(t, requests, x.stale.Load())
	require.EqualValues(t, requests, x.fresh.Load())

	reported, expired := sess.snapshot()
	require.Empty(t, reported)
	require.Zero(t, expired)
	require.False(t, coord.Refreshing())
}

func TestLateUnauthorizedReusesSettledRefresh(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{scheme: session.SchemeOAuth2, token: "stale"}
	slowArrived := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(authsdk.HeaderXSRFToken) == "fresh" {
			_, _ = w.Write([]byte("ok"))
			return
		}
		if r.URL.Path == "/service/slow" {
			close(slowArrived)
			<-release
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	var probes atomic.Int32
	coord := &transport.Coordinator{Logger: discard, Probe: func(context.Context) error {
		probes.Add(1)
		sess.setToken("fresh")
		return nil
	}}
	client := &http.Client{Transport: &transport.Transport{
		Session:     sess,
		Coordinator: coord,
		Base:        srv.Client().Transport,
		Logger:      discard,
	}}

	slowStatus := make(chan int, 1)
	go func() {
		resp, err := client.Get(srv.URL + "/service/slow")
		if !assert.NoError(t, err) {
			slowStatus <- 0
			return
		}
		_ = resp.Body.Close()
		slowStatus <- resp.StatusCode
	}()
	<-slowArrived

	resp, err := client.Get(srv.URL + "/service/fast")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, probes.Load())

	// The slow request was stamped before the refresh and is rejected only now.
	close(release)
	require.Equal(t, http.StatusOK, <-slowStatus)
	require.EqualValues(t, 1, probes.Load())

	reported, expired := sess.snapshot()
	require.Empty(t, reported)
	require.Zero(t, expired)
}

func TestNonRefreshableUnauthorized(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		scheme session.Scheme
		path   string
	}{
		"basic session":      {scheme: session.SchemeBasic, path: "/service/items"},
		"outside the prefix": {scheme: session.SchemeOAuth2, path: "/tenant/currentTenant"},
		"unauthenticated":    {scheme: session.SchemeNone, path: "/service/items"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			x, srv := newXSRFServer(t, "never")
			sess := &fakeSession{scheme: tc.scheme, token: "xsrf-1", secret: "Basic abc"}

			var probes atomic.Int32
			client := &http.Client{Transport: &transport.Transport{
				Session: sess,
				Coordinator: &transport.Coordinator{Logger: discard, Probe: func(context.Context) error {
					probes.Add(1)
					return nil
				}},
				Base:   srv.Client().Transport,
				Logger: discard,
			}}

			resp, err := client.Get(srv.URL + tc.path)
			require.NoError(t, err)
			_ = resp.Body.Close()

			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Zero(t, probes.Load())
			require.EqualValues(t, 1, x.stale.Load())

			reported, expired := sess.snapshot()
			require.Len(t, reported, 1)
			require.ErrorIs(t, reported[0], session.ErrNotRefreshable)
			require.Zero(t, expired)
		})
	}
}

func TestStillUnauthorizedAfterRefresh(t *testing.T) {
	t.Parallel()

	x, srv := newXSRFServer(t, "never")
	sess := &fakeSession{scheme: session.SchemeOAuth2, token: "stale"}

	var probes atomic.Int32
	client := &http.Client{Transport: &transport.Transport{
		Session: sess,
		Coordinator: &transport.Coordinator{Logger: discard, Probe: func(context.Context) error {
			probes.Add(1)
			return errors.New("probe rejected")
		}},
		Base:   srv.Client().Transport,
		Logger: discard,
	}}

	resp, err := client.Get(srv.URL + "/service/items")
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.EqualValues(t, 1, probes.Load())
	require.EqualValues(t, 2, x.stale.Load(), "resubmitted exactly once")

	reported, expired := sess.snapshot()
	require.Len(t, reported, 1)
	require.ErrorIs(t, reported[0], session.ErrRetryUnauthorized)
	require.Equal(t, 1, expired)
}

func TestRetryReplaysBody(t *testing.T) {
	t.Parallel()

	x, srv := newXSRFServer(t, "fresh")
	sess := &fakeSession{scheme: session.SchemeOAuth2, token: "stale"}
	client := &http.Client{Transport: &transport.Transport{
		Session: sess,
		Coordinator: &transport.Coordinator{Logger: discard, Probe: func(context.Context) error {
			sess.setToken("fresh")
			return nil
		}},
		Base:   srv.Client().Transport,
		Logger: discard,
	}}

	resp, err := client.Post(srv.URL+"/service/orders", "application/json", strings.NewReader(`{"qty":2}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"qty":2}`, <-x.bodies)
	require.Equal(t, `{"qty":2}`, <-x.bodies)
}

func TestCustomProtectedPrefix(t *testing.T) {
	t.Parallel()

	x, srv := newXSRFServer(t, "fresh")
	sess := &fakeSession{scheme: session.SchemeOAuth2, token: "stale"}
	client := &http.Client{Transport: &transport.Transport{
		Session:         sess,
		ProtectedPrefix: "/api",
		Coordinator: &transport.Coordinator{Logger: discard, Probe: func(context.Context) error {
			sess.setToken("fresh")
			return nil
		}},
		Base:   srv.Client().Transport,
		Logger: discard,
	}}

	resp, err := client.Get(srv.URL + "/api/things")
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, x.fresh.Load())
}
