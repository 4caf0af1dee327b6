package periods

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fabrica-erp/fabrica/internal/consol"
	"github.com/fabrica-erp/fabrica/internal/shared"
)

// Store defines the required persistence behaviour for the service.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
	LockState(ctx context.Context, tx pgx.Tx, tenantID int64, month string) (exists, closed bool, err error)
	SetClosed(ctx context.Context, tx pgx.Tx, tenantID int64, month string, closed bool) error
	InsertTransition(ctx context.Context, tx pgx.Tx, t Transition) error
	ListTransitions(ctx context.Context, tenantID int64, month string, limit int) ([]Transition, error)
}

// Service drives the OPEN/CLOSED state machine for consolidated months. The
// lock is soft: it is enforced by the recalculator's guard, while reads of a
// closed snapshot stay allowed.
type Service struct {
	store  Store
	cache  *consol.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithCache invalidates cached snapshots after a flag flip.
func (s *Service) WithCache(cache *consol.Cache) {
	s.cache = cache
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Close marks the month as CLOSED. It requires a snapshot to exist and the
// period to currently be OPEN.
func (s *Service) Close(ctx context.Context, tenantID int64, month string, actorID int64) error {
	return s.transition(ctx, tenantID, month, actorID, StatusOpen, StatusClosed)
}

// Reopen clears the lock flag. It requires a snapshot to exist and the period
// to currently be CLOSED.
func (s *Service) Reopen(ctx context.Context, tenantID int64, month string, actorID int64) error {
	return s.transition(ctx, tenantID, month, actorID, StatusClosed, StatusOpen)
}

// History lists recorded transitions for the month, newest first.
func (s *Service) History(ctx context.Context, tenantID int64, month string, limit int) ([]Transition, error) {
	if err := shared.ValidateMonth(month); err != nil {
		return nil, err
	}
	return s.store.ListTransitions(ctx, tenantID, month, limit)
}

func (s *Service) transition(ctx context.Context, tenantID int64, month string, actorID int64, from, to Status) error {
	if tenantID <= 0 {
		return errors.New("periods: tenant id required")
	}
	if actorID <= 0 {
		return errors.New("periods: actor required")
	}
	if err := shared.ValidateMonth(month); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		exists, closed, err := s.store.LockState(ctx, tx, tenantID, month)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNoConsolidation
		}
		current := StatusOpen
		if closed {
			current = StatusClosed
		}
		if current != from {
			if to == StatusClosed {
				return ErrAlreadyClosed
			}
			return ErrAlreadyOpen
		}
		if err := s.store.SetClosed(ctx, tx, tenantID, month, to == StatusClosed); err != nil {
			return err
		}
		return s.store.InsertTransition(ctx, tx, Transition{
			TenantID:   tenantID,
			Month:      month,
			FromStatus: from,
			ToStatus:   to,
			ActorID:    actorID,
			OccurredAt: s.now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	s.cache.Bump(ctx)
	if s.logger != nil {
		s.logger.Info("period transition",
			slog.Int64("tenant_id", tenantID),
			slog.String("month", month),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.Int64("actor_id", actorID),
		)
	}
	return nil
}
