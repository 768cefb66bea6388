package scheduler

import "context"

// Job is a unit of background work.
type Job interface {
	Execute(ctx context.Context) error
	Description() string
	UserID() string
}
