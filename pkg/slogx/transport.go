package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// HeaderRequestID carries the correlation ID to the backend.
const HeaderRequestID = "X-Request-ID"

// Transport logs every outgoing request and tags it with a correlation ID.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, reqID := EnsureRequestID(req.Context())

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		"req_id", reqID,
		"method", req.Method,
		"path", req.URL.Path,
	)

	out := req.Clone(WithContext(ctx, logger))
	out.Header.Set(HeaderRequestID, reqID)

	resp, err := t.base().RoundTrip(out)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request", "error", err, "duration_ms", duration)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
