package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
	"github.com/aussiebroadwan/authsession/internal/identityapi"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"golang.org/x/sync/singleflight"
)

// ServiceManager owns the merchant initiated service token.
type ServiceManager struct {
	owner   *Coordinator
	api     ServiceAPI
	refresh singleflight.Group

	mu  sync.Mutex
	tok string
}

func newServiceManager(owner *Coordinator, api ServiceAPI) *ServiceManager {
	return &ServiceManager{owner: owner, api: api}
}

func (m *ServiceManager) token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tok
}

func (m *ServiceManager) setToken(t string) {
	m.mu.Lock()
	m.tok = t
	m.mu.Unlock()
}

// Login exchanges an acquirer offer for a service token.
func (m *ServiceManager) Login(ctx context.Context, offerID string) error {
	if offerID == "" {
		return fmt.Errorf("service login: empty offer id")
	}

	resp, err := m.api.ServiceLogin(ctx, offerID)
	if err != nil {
		return classify("service login", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("service login: %w: empty token", domain.ErrTransient)
	}
	if err := m.owner.store.Tokens().PutToken(ctx, domain.ServiceToken, resp.Token); err != nil {
		return fmt.Errorf("store service token: %w", err)
	}

	m.setToken(resp.Token)
	m.owner.logger.Info("service token acquired", "token_fp", cryptox.FingerprintToken(resp.Token))
	m.owner.loginFinished(domain.ServiceAuth)
	return nil
}

// Refresh replaces the service token, sharing one request between
// concurrent callers. A 401 logs the service session out.
func (m *ServiceManager) Refresh(ctx context.Context) error {
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

func (m *ServiceManager) doRefresh(ctx context.Context) error {
	current := m.token()
	if current == "" {
		return domain.ErrNotAuthorized
	}

	resp, err := m.api.ServiceRefresh(ctx, current)
	if err != nil {
		if identityapi.IsUnauthorized(err) {
			m.owner.logoutIfState(ctx, domain.ServiceAuth)
		}
		return classify("service refresh", err)
	}
	if resp.Token == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok != current || m.owner.State() != domain.ServiceAuth {
		m.owner.logger.Info("discarding refreshed service token for a finished session")
		return nil
	}
	if err := m.owner.store.Tokens().PutToken(ctx, domain.ServiceToken, resp.Token); err != nil {
		return fmt.Errorf("store service token: %w", err)
	}
	m.tok = resp.Token
	return nil
}

func (m *ServiceManager) logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tok == "" {
		return nil
	}

	ticket := domain.LogoutTicket{Token: m.tok, Kind: domain.ServiceToken, CreatedAt: time.Now()}
	if err := m.owner.revoker.persist(ctx, ticket); err != nil {
		return err
	}

	m.tok = ""
	m.owner.revoker.schedule(ticket)
	return nil
}
