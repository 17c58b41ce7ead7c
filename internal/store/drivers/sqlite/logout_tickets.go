package sqlite

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/authsession/internal/domain"
)

type logoutTicketsRepo struct {
	q querier
}

func (r *logoutTicketsRepo) GetTicket(ctx context.Context, kind domain.TokenKind) (domain.LogoutTicket, error) {
	var (
		token     string
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT token, created_at FROM logout_tickets WHERE kind = ?`, string(kind),
	).Scan(&token, &createdAt)
	if err != nil {
		return domain.LogoutTicket{}, mapNotFound(err)
	}
	return domain.LogoutTicket{Token: token, Kind: kind, CreatedAt: fromMillis(createdAt)}, nil
}

func (r *logoutTicketsRepo) PutTicket(ctx context.Context, t domain.LogoutTicket) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO logout_tickets (kind, token, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (kind) DO UPDATE SET token = excluded.token, created_at = excluded.created_at`,
		string(t.Kind), t.Token, toMillis(t.CreatedAt),
	)
	return err
}

func (r *logoutTicketsRepo) DeleteTicket(ctx context.Context, kind domain.TokenKind) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM logout_tickets WHERE kind = ?`, string(kind))
	return err
}

func (r *logoutTicketsRepo) ListTickets(ctx context.Context) ([]domain.LogoutTicket, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT kind, token, created_at FROM logout_tickets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LogoutTicket
	for rows.Next() {
		var (
			kind      string
			t         domain.LogoutTicket
			createdAt int64
		)
		if err := rows.Scan(&kind, &t.Token, &createdAt); err != nil {
			return nil, fmt.Errorf("scan logout ticket: %w", err)
		}
		t.Kind = domain.TokenKind(kind)
		t.CreatedAt = fromMillis(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}
