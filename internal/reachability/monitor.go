// Package reachability tracks whether the identity backend can be reached
// and notifies one-shot waiters when it becomes reachable.
package reachability

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Prober checks connectivity once. A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber sends a HEAD request to URL. Any HTTP response counts as
// reachable; only transport failures do not.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func (p HTTPProber) Probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Monitor is a connectivity event source. It is driven either by its own
// polling worker (Start/Stop) or by platform events pushed through Set.
type Monitor struct {
	Prober   Prober
	Logger   *slog.Logger
	Interval time.Duration

	mu        sync.Mutex
	reachable bool
	waiters   map[uint64]func()
	nextID    uint64
	started   bool
	stopped   bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor creates a monitor with the given initial state. If interval
// is 0 or negative, defaults to 15 seconds.
func NewMonitor(prober Prober, logger *slog.Logger, interval time.Duration, reachable bool) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		Prober:    prober,
		Logger:    logger,
		Interval:  interval,
		reachable: reachable,
		waiters:   map[uint64]func(){},
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// IsReachable returns the last observed state.
func (m *Monitor) IsReachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Set records a new state. A transition to reachable fires every pending
// waiter exactly once, each on its own goroutine.
func (m *Monitor) Set(reachable bool) {
	m.mu.Lock()
	was := m.reachable
	m.reachable = reachable

	var fire []func()
	if reachable && !was {
		for id, fn := range m.waiters {
			fire = append(fire, fn)
			delete(m.waiters, id)
		}
	}
	m.mu.Unlock()

	if was != reachable {
		m.Logger.Info("connectivity changed", "reachable", reachable, "waiters", len(fire))
	}
	for _, fn := range fire {
		go fn()
	}
}

// MarkUnreachable records that a call to the backend failed. The next probe
// or Set(true) brings it back.
func (m *Monitor) MarkUnreachable() { m.Set(false) }

// NotifyReachable runs fn once the backend is reachable: immediately (on a
// new goroutine) when it already is, otherwise on the next transition. The
// returned cancel func unregisters a waiter that has not fired yet.
func (m *Monitor) NotifyReachable(fn func()) (cancel func()) {
	m.mu.Lock()
	if m.reachable {
		m.mu.Unlock()
		go fn()
		return func() {}
	}

	id := m.nextID
	m.nextID++
	m.waiters[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.waiters, id)
		m.mu.Unlock()
	}
}

// Pending returns the number of registered waiters.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// Start begins the background probe loop. It is a no-op without a Prober
// or once the monitor was stopped. Call Stop() to shut the worker down.
func (m *Monitor) Start() {
	if m.Prober == nil {
		return
	}

	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run()
	m.Logger.Info("reachability monitor started", "interval", m.Interval)
}

// Stop shuts down the background worker and blocks until it has exited.
// Pending waiters are dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	clear(m.waiters)
	m.mu.Unlock()

	close(m.stopCh)
	if started {
		<-m.doneCh
		m.Logger.Info("reachability monitor stopped")
	}
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.probe()

	for {
		select {
		case <-ticker.C:
			m.probe()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.Interval)
	defer cancel()

	err := m.Prober.Probe(ctx)
	if err != nil {
		m.Logger.Debug("probe failed", "error", err)
	}
	m.Set(err == nil)
}
