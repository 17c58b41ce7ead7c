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
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
)

// invalidateTimeout bounds a single server-side logout call.
const invalidateTimeout = 30 * time.Second

type invalidateFunc func(ctx context.Context, token, mobileUID string) error

// revoker invalidates logged out tokens on the backend once it is reachable.
// A ticket stays persisted until the backend accepted the logout or already
// rejected the token, so a restart resumes whatever was still pending.
type revoker struct {
	store     store.Store
	conn      Connectivity
	deviceID  string
	logger    *slog.Logger
	calls     map[domain.TokenKind]invalidateFunc
	inflight  sync.WaitGroup
	pendingMu sync.Mutex
	pending   map[string]bool
}

func newRevoker(st store.Store, conn Connectivity, deviceID string, logger *slog.Logger) *revoker {
	return &revoker{
		store:    st,
		conn:     conn,
		deviceID: deviceID,
		logger:   logger,
		calls:    map[domain.TokenKind]invalidateFunc{},
		pending:  map[string]bool{},
	}
}

func (r *revoker) register(kind domain.TokenKind, fn invalidateFunc) {
	r.calls[kind] = fn
}

// persist records the ticket and drops the live token in one transaction.
func (r *revoker) persist(ctx context.Context, t domain.LogoutTicket) error {
	return r.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.LogoutTickets().PutTicket(ctx, t); err != nil {
			return fmt.Errorf("store logout ticket: %w", err)
		}
		if err := tx.Tokens().DeleteToken(ctx, t.Kind); err != nil {
			return fmt.Errorf("delete %s token: %w", t.Kind, err)
		}
		return nil
	})
}

// schedule runs the invalidation the next time the backend is reachable,
// or right away when it already is. A transient failure reports the
// backend unreachable and waits for the next transition.
func (r *revoker) schedule(t domain.LogoutTicket) {
	key := string(t.Kind) + ":" + t.Token

	r.pendingMu.Lock()
	if r.pending[key] {
		r.pendingMu.Unlock()
		return
	}
	r.pending[key] = true
	r.pendingMu.Unlock()

	r.inflight.Add(1)
	r.await(key, t)
}

func (r *revoker) await(key string, t domain.LogoutTicket) {
	r.conn.NotifyReachable(func() {
		if !r.invalidate(t) {
			r.conn.MarkUnreachable()
			r.await(key, t)
			return
		}

		r.pendingMu.Lock()
		delete(r.pending, key)
		r.pendingMu.Unlock()
		r.inflight.Done()
	})
}

// invalidate reports false when the call should be retried.
func (r *revoker) invalidate(t domain.LogoutTicket) bool {
	log := r.logger.With("kind", string(t.Kind), "token_fp", cryptox.FingerprintToken(t.Token))

	fn, ok := r.calls[t.Kind]
	if !ok {
		log.Error("no logout call registered for token kind")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	err := fn(ctx, t.Token, r.deviceID)
	switch {
	case err == nil:
		log.Info("token invalidated")
	case identityapi.IsUnauthorized(err):
		log.Info("token already rejected by backend")
	default:
		log.Warn("logout deferred until the backend is reachable again", "error", err)
		return false
	}

	if err := r.forget(ctx, t); err != nil {
		log.Error("failed to delete logout ticket", "error", err)
	}
	return true
}

// forget deletes the stored ticket only while it still holds t's token.
func (r *revoker) forget(ctx context.Context, t domain.LogoutTicket) error {
	return r.store.WithTx(ctx, func(tx store.Tx) error {
		stored, err := tx.LogoutTickets().GetTicket(ctx, t.Kind)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if stored.Token != t.Token {
			return nil
		}
		return tx.LogoutTickets().DeleteTicket(ctx, t.Kind)
	})
}

// resume schedules every ticket left over from a previous run.
func (r *revoker) resume(ctx context.Context) error {
	tickets, err := r.store.LogoutTickets().ListTickets(ctx)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		r.logger.Info("resuming pending logout", "kind", string(t.Kind))
		r.schedule(t)
	}
	return nil
}

// wait blocks until every scheduled invalidation ran or ctx is done.
func (r *revoker) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
