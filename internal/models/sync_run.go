package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncRunning   SyncStatus = "running"
	SyncSucceeded SyncStatus = "succeeded"
	SyncFailed    SyncStatus = "failed"
)

func (s SyncStatus) Active() bool {
	return s == SyncPending || s == SyncRunning
}

// SyncRun tracks one background synchronization of a linked item.
type SyncRun struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	ItemID      string     `db:"item_id"`
	Status      SyncStatus `db:"status"`
	WindowStart *time.Time `db:"window_start"`
	WindowEnd   *time.Time `db:"window_end"`
	Fetched     int        `db:"fetched"`
	Inserted    int        `db:"inserted"`
	Error       *string    `db:"error"`
	CreatedAt   time.Time  `db:"created_at"`
	StartedAt   *time.Time `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
}
