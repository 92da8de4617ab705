package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tenantauth/pkg/session"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// DefaultProtectedPrefix is the path prefix of backend endpoints whose 401 means an
// expired session.
const DefaultProtectedPrefix = "/service"

// Session is what the Transport needs from the session manager.
type Session interface {
	Scheme() session.Scheme
	BasicSecret() string
	XSRFToken() string
	HandleSessionExpired(req *http.Request, resp *http.Response, err error)
	MarkExpired(ctx context.Context)
}

var _ Session = (*session.Manager)(nil)

// Transport is an [http.RoundTripper] that authenticates requests for the current
// session. A 401 on a protected path of an SSO session triggers a shared refresh after
// which the request is resubmitted once; any other 401 is reported and returned.
type Transport struct {
	Session     Session
	Coordinator *Coordinator

	// ProtectedPrefix defaults to DefaultProtectedPrefix
	ProtectedPrefix string

	// Base is the underlying transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	Logger *slog.Logger
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slogx.Component(nil, "transport")
}

// stamp authenticates req with the credential the session holds right now.
func (t *Transport) stamp(req *http.Request) *http.Request {
	scheme := t.Session.Scheme()
	switch scheme {
	case session.SchemeOAuth2:
		return Stamp(req, scheme, t.Session.XSRFToken())
	case session.SchemeBasic:
		return Stamp(req, scheme, t.Session.BasicSecret())
	default:
		return req
	}
}

func (t *Transport) protected(req *http.Request) bool {
	prefix := t.ProtectedPrefix
	if prefix == "" {
		prefix = DefaultProtectedPrefix
	}
	return strings.HasPrefix(req.URL.Path, prefix)
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, reqID := slogx.EnsureRequestID(req.Context())
	req = req.WithContext(ctx)

	scheme := t.Session.Scheme()
	var gen uint64
	if t.Coordinator != nil {
		gen = t.Coordinator.Generation()
	}
	resp, err := t.base().RoundTrip(t.stamp(req))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if scheme != session.SchemeOAuth2 || !t.protected(req) || t.Coordinator == nil {
		t.Session.HandleSessionExpired(req, resp,
			fmt.Errorf("%w: scheme %s, path %s", session.ErrNotRefreshable, scheme, req.URL.Path))
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		t.Session.HandleSessionExpired(req, resp,
			fmt.Errorf("%w: request body cannot be replayed", session.ErrNotRefreshable))
		return resp, nil
	}

	drain(resp)

	logger := t.logger().With("req_id", reqID, "method", req.Method, "path", req.URL.Path)
	// A refresh that settled while this request was in flight already renewed the
	// session; the retry below picks up its token.
	if err := t.Coordinator.RefreshAfter(ctx, gen); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("session refresh failed, resubmitting anyway", "error", err)
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}

	resp, err = t.base().RoundTrip(t.stamp(retry))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.Session.HandleSessionExpired(retry, resp,
			fmt.Errorf("%w: %s %s", session.ErrRetryUnauthorized, req.Method, req.URL.Path))
		t.Session.MarkExpired(ctx)
		return resp, nil
	}

	logger.Debug("request succeeded after refresh", "status", resp.StatusCode)
	return resp, nil
}

// rewind returns a fresh copy of req with its body replayed.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("transport: replay body: %w", err)
	}
	out.Body = body
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
