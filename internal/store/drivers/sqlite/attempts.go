package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type attemptsRepo struct {
	q querier
}

func (r *attemptsRepo) GetAttempts(ctx context.Context, flow string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT attempts FROM pincode_attempts WHERE flow = ?`, flow).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *attemptsRepo) SetAttempts(ctx context.Context, flow string, n int) error {
	if n < 0 {
		return fmt.Errorf("attempts must be non-negative, got %d", n)
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO pincode_attempts (flow, attempts, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (flow) DO UPDATE SET attempts = excluded.attempts, updated_at = excluded.updated_at`,
		flow, n, toMillis(time.Now()),
	)
	return err
}
