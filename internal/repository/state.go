package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StateRepo keeps engine snapshots. Exactly one row is active; older rows
// stay as history.
type StateRepo struct {
	pool *pgxpool.Pool
}

func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// GetActive returns the active snapshot, or nil when none was saved.
func (r *StateRepo) GetActive(ctx context.Context) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT snapshot FROM bot_state WHERE is_active = true ORDER BY updated_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

// Save replaces the active snapshot in place, inserting the first row when
// the table is empty.
func (r *StateRepo) Save(ctx context.Context, snapshot []byte) error {
	if !json.Valid(snapshot) {
		return errors.New("snapshot is not valid JSON")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE bot_state SET snapshot = $1, updated_at = NOW() WHERE is_active = true`,
		snapshot,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bot_state (snapshot, is_active) VALUES ($1, true)`,
			snapshot,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Archive deactivates the current snapshot so the next start begins fresh.
func (r *StateRepo) Archive(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE bot_state SET is_active = false, updated_at = NOW() WHERE is_active = true`)
	return err
}
