package sqlite

import (
	"context"
	"time"
)

type deviceRepo struct {
	q querier
}

func (r *deviceRepo) GetDeviceID(ctx context.Context) (string, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT device_id FROM device WHERE id = 1`).Scan(&id)
	if err != nil {
		return "", mapNotFound(err)
	}
	return id, nil
}

func (r *deviceRepo) SetDeviceID(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO device (id, device_id, created_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET device_id = excluded.device_id`,
		id, toMillis(time.Now()),
	)
	return err
}
