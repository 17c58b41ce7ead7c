package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/authsession/internal/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits or rolls back; the outer DB stays open

// Ping is a no-op for transactions.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Nested tx not supported
	return sql.ErrTxDone
}

func (t *txStore) Device() store.Device               { return &deviceRepo{q: t.tx} }
func (t *txStore) Tokens() store.Tokens               { return &tokensRepo{q: t.tx} }
func (t *txStore) LogoutTickets() store.LogoutTickets { return &logoutTicketsRepo{q: t.tx} }
func (t *txStore) Pincode() store.Pincode             { return &pincodeRepo{q: t.tx} }
func (t *txStore) Attempts() store.Attempts           { return &attemptsRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx
