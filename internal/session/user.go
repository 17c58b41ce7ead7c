package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

// UserManager owns the end-user token and the correlation state of the
// in-flight verification.
type UserManager struct {
	owner *Coordinator
	api   UserAPI

	// authMu serializes authorize, acquire and prolong.
	authMu  sync.Mutex
	refresh singleflight.Group

	mu   sync.Mutex
	tok  string
	proc domain.VerificationProcess
	flow domain.UserFlow
}

func newUserManager(owner *Coordinator, api UserAPI) *UserManager {
	return &UserManager{
		owner: owner,
		api:   api,
		flow:  domain.DefaultUserFlow(),
	}
}

func (m *UserManager) token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tok
}

func (m *UserManager) setToken(t string) {
	m.mu.Lock()
	m.tok = t
	m.mu.Unlock()
}

// Correlation returns a snapshot of the in-flight verification.
func (m *UserManager) Correlation() domain.VerificationProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proc
}

// SetTarget records the method chosen by the redirect handler.
func (m *UserManager) SetTarget(target domain.AuthMethod) {
	m.mu.Lock()
	m.proc.Target = target
	m.mu.Unlock()
}

// SetRequestID records the request id returned by the external redirect.
func (m *UserManager) SetRequestID(id string) {
	m.mu.Lock()
	m.proc.RequestID = id
	m.mu.Unlock()
}

// SetProcessID records the server process id.
func (m *UserManager) SetProcessID(id string) {
	m.mu.Lock()
	m.proc.ProcessID = id
	m.mu.Unlock()
}

// SetFlow installs the completion routing used by Authorize.
func (m *UserManager) SetFlow(f domain.UserFlow) {
	m.mu.Lock()
	m.flow = f
	m.mu.Unlock()
}

// Flow returns the installed flow.
func (m *UserManager) Flow() domain.UserFlow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flow
}

// Authorize runs verify for the correlated target, request and process.
// Without all three it fails with ErrMissingCorrelation before any I/O.
// The verify interrupt is resolved and its action handed to the installed
// flow. Target and request id are consumed whatever the outcome.
func (m *UserManager) Authorize(ctx context.Context, params map[string]string) (domain.Action, error) {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	proc := m.Correlation()
	if !proc.Complete() {
		return "", domain.ErrMissingCorrelation
	}

	p := identityapi.VerifyParams{
		Target:    proc.Target,
		RequestID: proc.RequestID,
		ProcessID: proc.ProcessID,
		Extra:     map[string]string{},
	}
	for k, v := range params {
		if k == "bankId" {
			p.BankID = v
			continue
		}
		p.Extra[k] = v
	}

	resp, err := m.api.Verify(ctx, m.owner.Token(), p)

	m.mu.Lock()
	m.proc.Target = ""
	m.proc.RequestID = ""
	flow := m.flow
	m.mu.Unlock()

	ctx = slogx.WithRequestID(slogx.WithContext(ctx, m.owner.logger), proc.RequestID)
	log := slogx.FromContext(ctx).With("target", string(proc.Target), "process_id", proc.ProcessID)
	if err != nil {
		log.Warn("verify failed", "error", err)
		if identityapi.IsUnauthorized(err) {
			m.owner.logoutIfState(ctx, domain.UserAuth)
		}
		return "", classify("verify", err)
	}

	action, err := m.owner.interrupts.Resolve(ctx, resp.Template)
	if err != nil {
		return "", fmt.Errorf("resolve verify template: %w", err)
	}

	log.Info("verify completed", "action", string(action))
	flow.Complete(action)
	return action, nil
}

// AcquireToken exchanges processID for a user token, then marks the session
// authorized and clears the correlation state.
func (m *UserManager) AcquireToken(ctx context.Context, processID string) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	resp, err := m.api.GetToken(ctx, processID)
	if err != nil {
		if identityapi.IsUnauthorized(err) {
			m.owner.logoutIfState(ctx, domain.UserAuth)
		}
		return classify("get token", err)
	}
	return m.finishLogin(ctx, resp.Token)
}

// LoginWithToken installs a token obtained out-of-band.
func (m *UserManager) LoginWithToken(ctx context.Context, token string) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	return m.finishLogin(ctx, token)
}

func (m *UserManager) finishLogin(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", domain.ErrTransient)
	}
	if err := m.owner.store.Tokens().PutToken(ctx, domain.UserToken, token); err != nil {
		return fmt.Errorf("store user token: %w", err)
	}

	m.mu.Lock()
	m.tok = token
	m.proc = domain.VerificationProcess{}
	m.mu.Unlock()

	m.owner.logger.Info("user token acquired", "token_fp", cryptox.FingerprintToken(token))
	m.owner.loginFinished(domain.UserAuth)
	return nil
}

// Refresh replaces the user token. Concurrent callers share one request and
// its result. A template in the response is resolved before Refresh
// returns; a 401 logs the session out.
func (m *UserManager) Refresh(ctx context.Context) error {
	ch := m.refresh.DoChan("refresh", func() (any, error) {
		return nil, m.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *UserManager) doRefresh(ctx context.Context) error {
	current := m.token()
	if current == "" {
		return domain.ErrNotAuthorized
	}

	resp, err := m.api.RefreshToken(ctx, current)
	if err != nil {
		if identityapi.IsUnauthorized(err) {
			m.owner.logoutIfState(ctx, domain.UserAuth)
		}
		return classify("refresh", err)
	}

	if resp.Token != "" {
		if err := m.replaceToken(ctx, current, resp.Token); err != nil {
			return err
		}
	}

	if resp.Template != nil {
		action, err := m.owner.interrupts.Resolve(ctx, *resp.Template)
		if err != nil {
			return fmt.Errorf("resolve refresh template: %w", err)
		}
		if action == domain.ActionLogout {
			return m.owner.Logout(ctx)
		}
	}
	return nil
}

// replaceToken swaps current for next unless the session changed while the
// request was in flight.
func (m *UserManager) replaceToken(ctx context.Context, current, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tok != current || m.owner.State() != domain.UserAuth {
		m.owner.logger.Info("discarding refreshed token for a finished session")
		return nil
	}
	if err := m.owner.store.Tokens().PutToken(ctx, domain.UserToken, next); err != nil {
		return fmt.Errorf("store user token: %w", err)
	}
	m.tok = next
	return nil
}

// Prolong extends the session with a verified process. The optional new
// token replaces the current one and the flow resets to the default login
// flow once any template is resolved.
func (m *UserManager) Prolong(ctx context.Context, processID string) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	current := m.token()
	resp, err := m.api.Prolong(ctx, current, processID)
	if err != nil {
		if identityapi.IsUnauthorized(err) {
			m.owner.logoutIfState(ctx, domain.UserAuth)
		}
		return classify("prolong", err)
	}

	if resp.Token != "" {
		if err := m.replaceToken(ctx, current, resp.Token); err != nil {
			return err
		}
	}
	if resp.Template != nil {
		if _, err := m.owner.interrupts.Resolve(ctx, *resp.Template); err != nil {
			return fmt.Errorf("resolve prolong template: %w", err)
		}
	}

	m.SetFlow(domain.DefaultUserFlow())
	return nil
}

// logout persists a ticket, drops the token and schedules invalidation.
// Without a token it does nothing.
func (m *UserManager) logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tok == "" {
		return nil
	}

	ticket := domain.LogoutTicket{Token: m.tok, Kind: domain.UserToken, CreatedAt: time.Now()}
	if err := m.owner.revoker.persist(ctx, ticket); err != nil {
		return err
	}

	m.tok = ""
	m.owner.revoker.schedule(ticket)
	return nil
}
