package slogx_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{
		Service: "authsession",
		Env:     "test",
		Level:   "debug",
		Format:  "json",
		Output:  &buf,
	})

	logger.Debug("hello", "k", "v")
	out := buf.String()
	require.Contains(t, out, `"msg":"hello"`)
	require.Contains(t, out, `"service":"authsession"`)
	require.Contains(t, out, `"k":"v"`)
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "kept")
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Format: "text", Output: &buf})

	ctx := slogx.WithContext(context.Background(), logger)
	ctx = slogx.WithRequestID(ctx, "req-1")
	ctx = slogx.WithFlow(ctx, "authorization")
	slogx.FromContext(ctx).Info("event")

	require.Contains(t, buf.String(), "req_id=req-1")
	require.Contains(t, buf.String(), "flow=authorization")
}

func TestTransportAddsRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Level: "debug", Format: "text", Output: &buf})
	client := &http.Client{Transport: slogx.NewTransport(nil, logger)}

	resp, err := client.Get(srv.URL + "/v1/auth/methods")
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.NotEmpty(t, seen)
	require.True(t, strings.Contains(buf.String(), "path=/v1/auth/methods"))
	require.Contains(t, buf.String(), "status=418")
}
