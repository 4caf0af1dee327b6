package periods

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabrica-erp/fabrica/internal/platform/db"
)

// Repository persists the lock flag and its transition history.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("periods: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, fn)
}

// LockState loads and row-locks the snapshot's flag for (tenantID, month).
func (r *Repository) LockState(ctx context.Context, tx pgx.Tx, tenantID int64, month string) (exists, closed bool, err error) {
	const query = `
		SELECT is_closed
		FROM consolidation_snapshots
		WHERE tenant_id = $1 AND month = $2
		FOR UPDATE`
	err = tx.QueryRow(ctx, query, tenantID, month).Scan(&closed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("periods: lock state: %w", err)
	}
	return true, closed, nil
}

// SetClosed flips the lock flag. Monetary fields are never written here.
func (r *Repository) SetClosed(ctx context.Context, tx pgx.Tx, tenantID int64, month string, closed bool) error {
	const query = `
		UPDATE consolidation_snapshots
		SET is_closed = $3
		WHERE tenant_id = $1 AND month = $2`
	tag, err := tx.Exec(ctx, query, tenantID, month, closed)
	if err != nil {
		return fmt.Errorf("periods: set closed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoConsolidation
	}
	return nil
}

// InsertTransition appends one history entry.
func (r *Repository) InsertTransition(ctx context.Context, tx pgx.Tx, t Transition) error {
	const query = `
		INSERT INTO period_transitions (tenant_id, month, from_status, to_status, actor_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, query, t.TenantID, t.Month, string(t.FromStatus), string(t.ToStatus), t.ActorID, t.OccurredAt); err != nil {
		return fmt.Errorf("periods: insert transition: %w", err)
	}
	return nil
}

// ListTransitions returns the newest history entries for a month.
func (r *Repository) ListTransitions(ctx context.Context, tenantID int64, month string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, tenant_id, month, from_status, to_status, actor_id, occurred_at
		FROM period_transitions
		WHERE tenant_id = $1 AND month = $2
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, tenantID, month, limit)
	if err != nil {
		return nil, fmt.Errorf("periods: list transitions: %w", err)
	}
	defer rows.Close()

	transitions := []Transition{}
	for rows.Next() {
		var t Transition
		var from, to string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Month, &from, &to, &t.ActorID, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("periods: scan transition: %w", err)
		}
		t.FromStatus = Status(from)
		t.ToStatus = Status(to)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("periods: transition rows: %w", err)
	}
	return transitions, nil
}
