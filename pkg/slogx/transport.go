package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/idx"
)

// Transport logs every outbound request made through it. Requests without
// an X-Request-ID header are given one so the backend logs can be joined
// with ours.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = idx.New().String()
		r = r.Clone(r.Context())
		r.Header.Set("X-Request-ID", reqID)
	}

	logger := t.Logger.With(
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
	)

	resp, err := t.Base.RoundTrip(r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "error", err, "duration_ms", duration)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
