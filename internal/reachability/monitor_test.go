package reachability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type probeFunc func(ctx context.Context) error

func (f probeFunc) Probe(ctx context.Context) error { return f(ctx) }

func TestNotifyReachableFiresOnceOnTransition(t *testing.T) {
	t.Parallel()
	m := NewMonitor(nil, slogx.Discard(), time.Second, false)

	var fired atomic.Int32
	done := make(chan struct{}, 2)
	m.NotifyReachable(func() {
		fired.Add(1)
		done <- struct{}{}
	})
	require.Equal(t, 1, m.Pending())

	m.Set(false)
	require.Zero(t, fired.Load())

	m.Set(true)
	<-done
	m.Set(false)
	m.Set(true)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
	require.Zero(t, m.Pending())
}

func TestNotifyReachableWhenAlreadyReachable(t *testing.T) {
	t.Parallel()
	m := NewMonitor(nil, slogx.Discard(), time.Second, true)

	done := make(chan struct{})
	m.NotifyReachable(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not fire")
	}
}

func TestNotifyReachableCancel(t *testing.T) {
	t.Parallel()
	m := NewMonitor(nil, slogx.Discard(), time.Second, false)

	var fired atomic.Bool
	cancel := m.NotifyReachable(func() { fired.Store(true) })
	cancel()

	m.Set(true)
	time.Sleep(20 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestProbeLoop(t *testing.T) {
	t.Parallel()

	var up atomic.Bool
	prober := probeFunc(func(context.Context) error {
		if up.Load() {
			return nil
		}
		return errors.New("offline")
	})

	m := NewMonitor(prober, slogx.Discard(), 10*time.Millisecond, true)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return !m.IsReachable() }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	m.NotifyReachable(func() { close(done) })
	up.Store(true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not fire after connectivity returned")
	}
	require.True(t, m.IsReachable())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	m := NewMonitor(probeFunc(func(context.Context) error { return nil }), slogx.Discard(), 10*time.Millisecond, false)
	m.Start()
	m.Stop()
	m.Stop()
	m.Start()
}

func TestHTTPProber(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))

	p := HTTPProber{URL: srv.URL}
	require.NoError(t, p.Probe(context.Background()))

	srv.Close()
	require.Error(t, p.Probe(context.Background()))
}

func TestMarkUnreachableDefersNewWaiters(t *testing.T) {
	t.Parallel()
	m := NewMonitor(nil, slogx.Discard(), time.Second, true)

	m.MarkUnreachable()
	require.False(t, m.IsReachable())

	done := make(chan struct{})
	m.NotifyReachable(func() { close(done) })
	require.Equal(t, 1, m.Pending())

	m.Set(true)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not fire on reconnect")
	}
	require.Zero(t, m.Pending())
}
