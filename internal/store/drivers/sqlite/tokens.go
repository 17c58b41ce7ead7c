package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

type tokensRepo struct {
	q querier
}

func (r *tokensRepo) GetToken(ctx context.Context, kind domain.TokenKind) (string, error) {
	var token string
	err := r.q.QueryRowContext(ctx, `SELECT token FROM tokens WHERE kind = ?`, string(kind)).Scan(&token)
	if err != nil {
		return "", mapNotFound(err)
	}
	return token, nil
}

func (r *tokensRepo) PutToken(ctx context.Context, kind domain.TokenKind, token string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO tokens (kind, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (kind) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		string(kind), token, toMillis(time.Now()),
	)
	return err
}

func (r *tokensRepo) DeleteToken(ctx context.Context, kind domain.TokenKind) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM tokens WHERE kind = ?`, string(kind))
	return err
}
