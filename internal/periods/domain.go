package periods

import (
	"errors"
	"time"
)

// Status enumerates the two lifecycle states of a consolidated month.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Transition is one append-only history entry recording who moved a period
// between states and when. The monetary snapshot is never touched.
type Transition struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	Month      string    `json:"month"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ErrNoConsolidation is returned when close or reopen is attempted before any
// recalculation ever ran for the month. The caller should recalculate first.
var ErrNoConsolidation = errors.New("periods: no consolidation to close")

// ErrAlreadyClosed indicates a close on an already closed period.
var ErrAlreadyClosed = errors.New("periods: period already closed")

// ErrAlreadyOpen indicates a reopen on an already open period.
var ErrAlreadyOpen = errors.New("periods: period already open")
