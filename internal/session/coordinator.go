// Package session owns the authentication state of the process: the user
// session, the merchant initiated service session, offline-safe logout and
// the activation policy of the local pincode gate.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
	"github.com/aussiebroadwan/authsession/internal/store"
	"github.com/aussiebroadwan/authsession/pkg/jwtx"
)

const (
	// DefaultPincodePromptAfter is how long a pincode entry stays fresh.
	DefaultPincodePromptAfter = 300 * time.Second

	// refreshBuffer refreshes JWT bearers this long before they expire.
	refreshBuffer = 30 * time.Second
)

// UserAPI is the part of the identity backend the user session needs.
type UserAPI interface {
	Verify(ctx context.Context, token string, p identityapi.VerifyParams) (*identityapi.TemplateResponse, error)
	GetToken(ctx context.Context, processID string) (*identityapi.TokenResponse, error)
	RefreshToken(ctx context.Context, token string) (*identityapi.RefreshResponse, error)
	Prolong(ctx context.Context, token, processID string) (*identityapi.RefreshResponse, error)
	Logout(ctx context.Context, token, mobileUID string) error
}

// ServiceAPI is the part of the identity backend the service session needs.
type ServiceAPI interface {
	ServiceLogin(ctx context.Context, offerID string) (*identityapi.TokenResponse, error)
	ServiceRefresh(ctx context.Context, token string) (*identityapi.TokenResponse, error)
	ServiceLogout(ctx context.Context, token, mobileUID string) error
}

// Connectivity is a "became reachable" event source. fn runs at most once.
// MarkUnreachable reports a failed call so the next waiter only fires on a
// fresh transition to reachable.
type Connectivity interface {
	NotifyReachable(fn func()) (cancel func())
	MarkUnreachable()
}

// StateObserver is told about logins and logouts.
type StateObserver interface {
	LoginDidFinish(state domain.AuthState)
	LogoutDidFinish()
}

// Config wires a Coordinator. Store, UserAPI, ServiceAPI, Connectivity and
// DeviceID are required.
type Config struct {
	Store        store.Store
	UserAPI      UserAPI
	ServiceAPI   ServiceAPI
	Connectivity Connectivity
	DeviceID     string

	// Pepper is mixed into pincode hashes.
	Pepper             string
	PincodePromptAfter time.Duration

	// Interrupts resolves templates returned by verify, refresh and prolong.
	// Defaults to resolving every template to its main action.
	Interrupts domain.InterruptHandler

	Observer StateObserver

	// Deliver runs observer callbacks. Defaults to running them inline.
	Deliver func(func())

	Logger *slog.Logger
	Now    func() time.Time
}

// Coordinator holds the single authentication state and routes every
// session operation to the manager that owns it.
type Coordinator struct {
	store       store.Store
	pepper      string
	promptAfter time.Duration
	interrupts  domain.InterruptHandler
	observer    StateObserver
	deliver     func(func())
	logger      *slog.Logger
	now         func() time.Time

	user    *UserManager
	service *ServiceManager
	revoker *revoker

	mu     sync.RWMutex
	state  domain.AuthState
	authCh chan struct{}
}

// New restores the persisted session and resumes any pending logout.
func New(ctx context.Context, cfg Config) (*Coordinator, error) {
	if cfg.Store == nil || cfg.UserAPI == nil || cfg.ServiceAPI == nil || cfg.Connectivity == nil {
		return nil, errors.New("session: store, apis and connectivity are required")
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("session: device id is required")
	}

	c := &Coordinator{
		store:       cfg.Store,
		pepper:      cfg.Pepper,
		promptAfter: cfg.PincodePromptAfter,
		interrupts:  cfg.Interrupts,
		observer:    cfg.Observer,
		deliver:     cfg.Deliver,
		logger:      cfg.Logger,
		now:         cfg.Now,
		authCh:      make(chan struct{}),
	}
	if c.promptAfter <= 0 {
		c.promptAfter = DefaultPincodePromptAfter
	}
	if c.interrupts == nil {
		c.interrupts = domain.AutoResolve
	}
	if c.deliver == nil {
		c.deliver = func(fn func()) { fn() }
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.revoker = newRevoker(cfg.Store, cfg.Connectivity, cfg.DeviceID, c.logger)
	c.revoker.register(domain.UserToken, cfg.UserAPI.Logout)
	c.revoker.register(domain.ServiceToken, cfg.ServiceAPI.ServiceLogout)

	c.user = newUserManager(c, cfg.UserAPI)
	c.service = newServiceManager(c, cfg.ServiceAPI)

	if err := c.restore(ctx); err != nil {
		return nil, err
	}
	if err := c.revoker.resume(ctx); err != nil {
		return nil, fmt.Errorf("resume pending logout: %w", err)
	}
	return c, nil
}

// restore loads persisted tokens. A user token wins over a service token.
func (c *Coordinator) restore(ctx context.Context) error {
	userToken, err := c.store.Tokens().GetToken(ctx, domain.UserToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load user token: %w", err)
	}
	serviceToken, err := c.store.Tokens().GetToken(ctx, domain.ServiceToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load service token: %w", err)
	}

	switch {
	case userToken != "":
		c.user.setToken(userToken)
		c.state = domain.UserAuth
	case serviceToken != "":
		c.service.setToken(serviceToken)
		c.state = domain.ServiceAuth
	}

	c.logger.Info("session restored", "state", c.state.String())
	return nil
}

// User returns the user session manager.
func (c *Coordinator) User() *UserManager { return c.user }

// Service returns the service session manager.
func (c *Coordinator) Service() *ServiceManager { return c.service }

// State is the current authentication state.
func (c *Coordinator) State() domain.AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Token returns the bearer matching the current state, or "".
func (c *Coordinator) Token() string {
	switch c.State() {
	case domain.UserAuth:
		return c.user.token()
	case domain.ServiceAuth:
		return c.service.token()
	default:
		return ""
	}
}

// ValidToken returns the current bearer, refreshing it first when it is a
// JWT that expires within 30 seconds.
func (c *Coordinator) ValidToken(ctx context.Context) (string, error) {
	token := c.Token()
	if token == "" {
		return "", domain.ErrNotAuthorized
	}
	if !jwtx.ExpiresWithin(token, c.now(), refreshBuffer) {
		return token, nil
	}

	if err := c.Refresh(ctx); err != nil {
		return "", err
	}
	if token = c.Token(); token == "" {
		return "", domain.ErrNotAuthorized
	}
	return token, nil
}

// Authenticated returns a channel closed on the next successful user login.
func (c *Coordinator) Authenticated() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authCh
}

// Logout moves to NotAuthorized synchronously, clears the pincode, notifies
// the observer and hands the token to its manager for deferred revocation.
// It never waits on the network.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	prev := c.state
	c.state = domain.NotAuthorized
	c.mu.Unlock()

	c.logger.Info("logout", "previous_state", prev.String())

	var errs []error
	if err := c.clearPincode(ctx); err != nil {
		errs = append(errs, err)
	}

	if c.observer != nil {
		c.deliver(c.observer.LogoutDidFinish)
	}

	switch prev {
	case domain.UserAuth:
		errs = append(errs, c.user.logout(ctx))
	case domain.ServiceAuth:
		errs = append(errs, c.service.logout(ctx))
	}
	return errors.Join(errs...)
}

// logoutIfState forces a logout when a 401 hit the session of kind state.
func (c *Coordinator) logoutIfState(ctx context.Context, state domain.AuthState) {
	if c.State() != state {
		return
	}
	c.logger.Warn("session rejected by backend, logging out", "state", state.String())
	if err := c.Logout(ctx); err != nil {
		c.logger.Error("forced logout failed", "error", err)
	}
}

// loginFinished records a successful login of kind state.
func (c *Coordinator) loginFinished(state domain.AuthState) {
	c.mu.Lock()
	c.state = state
	if state == domain.UserAuth {
		close(c.authCh)
		c.authCh = make(chan struct{})
	}
	c.mu.Unlock()

	c.logger.Info("login finished", "state", state.String())
	if c.observer != nil {
		c.deliver(func() { c.observer.LoginDidFinish(state) })
	}
}

// ensureNotAuthorized guards operations that start a new session.
func (c *Coordinator) ensureNotAuthorized() error {
	if s := c.State(); s != domain.NotAuthorized {
		return fmt.Errorf("%w: %s session active", domain.ErrAlreadyAuthorized, s)
	}
	return nil
}

// AcquireToken exchanges a verified process for a user session.
func (c *Coordinator) AcquireToken(ctx context.Context, processID string) error {
	if err := c.ensureNotAuthorized(); err != nil {
		return err
	}
	return c.user.AcquireToken(ctx, processID)
}

// LoginWithToken installs a user token obtained out-of-band.
func (c *Coordinator) LoginWithToken(ctx context.Context, token string) error {
	if err := c.ensureNotAuthorized(); err != nil {
		return err
	}
	return c.user.LoginWithToken(ctx, token)
}

// ServiceLogin starts a service session for an acquirer offer.
func (c *Coordinator) ServiceLogin(ctx context.Context, offerID string) error {
	if err := c.ensureNotAuthorized(); err != nil {
		return err
	}
	return c.service.Login(ctx, offerID)
}

// Authorize completes the verify step of the in-flight verification.
func (c *Coordinator) Authorize(ctx context.Context, params map[string]string) (domain.Action, error) {
	return c.user.Authorize(ctx, params)
}

// Refresh renews the bearer of the active session. It is a no-op when no
// session exists.
func (c *Coordinator) Refresh(ctx context.Context) error {
	switch c.State() {
	case domain.UserAuth:
		return c.user.Refresh(ctx)
	case domain.ServiceAuth:
		return c.service.Refresh(ctx)
	default:
		return nil
	}
}

// Prolong extends the user session with a freshly verified process.
func (c *Coordinator) Prolong(ctx context.Context, processID string) error {
	if c.State() != domain.UserAuth {
		return domain.ErrNotAuthorized
	}
	return c.user.Prolong(ctx, processID)
}

// ProcessID returns the in-flight verification process id.
func (c *Coordinator) ProcessID() string { return c.user.Correlation().ProcessID }

// SetProcessID records the server process of the in-flight verification.
func (c *Coordinator) SetProcessID(id string) { c.user.SetProcessID(id) }

// SetUserFlow installs the completion routing for the next verify.
func (c *Coordinator) SetUserFlow(f domain.UserFlow) { c.user.SetFlow(f) }

// Flush waits until every scheduled server-side invalidation finished or
// ctx is done.
func (c *Coordinator) Flush(ctx context.Context) error {
	return c.revoker.wait(ctx)
}
