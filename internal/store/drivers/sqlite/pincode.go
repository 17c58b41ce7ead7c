package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authsession/internal/store"
)

type pincodeRepo struct {
	q querier
}

func (r *pincodeRepo) GetHash(ctx context.Context) (string, error) {
	var hash sql.NullString
	if err := r.q.QueryRowContext(ctx, `SELECT hash FROM pincode WHERE id = 1`).Scan(&hash); err != nil {
		return "", mapNotFound(err)
	}
	if !hash.Valid || hash.String == "" {
		return "", store.ErrNotFound
	}
	return hash.String, nil
}

func (r *pincodeRepo) SetHash(ctx context.Context, hash string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE pincode SET hash = ? WHERE id = 1`, hash)
	return err
}

func (r *pincodeRepo) ClearHash(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `UPDATE pincode SET hash = NULL, last_verified_at = NULL WHERE id = 1`)
	return err
}

func (r *pincodeRepo) GetLastVerifiedAt(ctx context.Context) (time.Time, error) {
	var at sql.NullInt64
	if err := r.q.QueryRowContext(ctx, `SELECT last_verified_at FROM pincode WHERE id = 1`).Scan(&at); err != nil {
		return time.Time{}, mapNotFound(err)
	}
	if !at.Valid {
		return time.Time{}, store.ErrNotFound
	}
	return fromMillis(at.Int64), nil
}

func (r *pincodeRepo) SetLastVerifiedAt(ctx context.Context, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE pincode SET last_verified_at = ? WHERE id = 1`, toMillis(at))
	return err
}

func (r *pincodeRepo) ClearLastVerifiedAt(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `UPDATE pincode SET last_verified_at = NULL WHERE id = 1`)
	return err
}

func (r *pincodeRepo) GetBiometryEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	if err := r.q.QueryRowContext(ctx, `SELECT biometry_enabled FROM pincode WHERE id = 1`).Scan(&enabled); err != nil {
		return false, mapNotFound(err)
	}
	return enabled, nil
}

func (r *pincodeRepo) SetBiometryEnabled(ctx context.Context, enabled bool) error {
	_, err := r.q.ExecContext(ctx, `UPDATE pincode SET biometry_enabled = ? WHERE id = 1`, enabled)
	return err
}
