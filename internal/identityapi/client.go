package identityapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// DefaultTimeout applies to every request.
const DefaultTimeout = 30 * time.Second

// bankListTTL is how long the bank list is served from memory.
const bankListTTL = 10 * time.Minute

// Client talks to the identity backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Headers are sent with every request (app version, platform, ...).
	Headers map[string]string

	limiter *rate.Limiter
	banks   *cache.Cache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHeaders sets static headers sent with every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.Headers[k] = v
		}
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger logs every request through slogx.Transport.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.HTTPClient.Transport = slogx.NewTransport(c.HTTPClient.Transport, logger)
	}
}

// New creates a client for baseURL with a 30 second timeout.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Headers: map[string]string{},
		banks:   cache.New(bankListTTL, 2*bankListTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
