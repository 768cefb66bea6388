package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finsight/internal/dto"
	"finsight/internal/models"
	"finsight/internal/repository"
	"finsight/internal/scheduler"
	"finsight/pkg/plaid"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Syncer runs one synchronization to completion.
type Syncer interface {
	Window(start, end *time.Time) (time.Time, time.Time, error)
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)
}

type SyncRunStore interface {
	CreatePending(ctx context.Context, run *models.SyncRun) (bool, error)
	GetActiveForItem(ctx context.Context, itemID string) (*models.SyncRun, error)
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.SyncRun, error)
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkSucceeded(ctx context.Context, id uuid.UUID, fetched, inserted int, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error
}

type ItemStore interface {
	GetForUser(ctx context.Context, userID uuid.UUID, itemID string) (*models.PlaidItem, error)
	ListAll(ctx context.Context) ([]*models.PlaidItem, error)
}

type JobSubmitter interface {
	Submit(job scheduler.Job) error
}

// SyncDispatcher turns sync requests into background jobs. Each queued sync
// has a sync_runs row that reports its progress and outcome.
type SyncDispatcher struct {
	syncer Syncer
	runs   SyncRunStore
	items  ItemStore
	pool   JobSubmitter
	logger *zap.Logger
	now    func() time.Time
}

func NewSyncDispatcher(syncer Syncer, runs SyncRunStore, items ItemStore, pool JobSubmitter, logger *zap.Logger) *SyncDispatcher {
	return &SyncDispatcher{
		syncer: syncer,
		runs:   runs,
		items:  items,
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue records a pending run and hands it to the worker pool. When the
// item already has a pending or running sync, that run is returned instead
// and queued is false.
func (d *SyncDispatcher) Enqueue(ctx context.Context, req SyncRequest) (*models.SyncRun, bool, error) {
	if _, err := d.items.GetForUser(ctx, req.UserID, req.ItemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, notFound("Item not found")
		}
		return nil, false, fmt.Errorf("failed to load item: %w", err)
	}

	start, end, err := d.syncer.Window(req.StartDate, req.EndDate)
	if err != nil {
		return nil, false, err
	}
	req.StartDate, req.EndDate = &start, &end

	run := &models.SyncRun{
		ID:          uuid.New(),
		UserID:      req.UserID,
		ItemID:      req.ItemID,
		Status:      models.SyncPending,
		WindowStart: &start,
		WindowEnd:   &end,
		CreatedAt:   d.now(),
	}

	created, err := d.runs.CreatePending(ctx, run)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create sync run: %w", err)
	}
	if !created {
		active, err := d.runs.GetActiveForItem(ctx, req.ItemID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load active sync run: %w", err)
		}
		d.logger.Info("Sync already in progress",
			zap.String("item_id", req.ItemID),
			zap.String("sync_id", active.ID.String()),
		)
		return active, false, nil
	}

	job := &syncJob{run: run, req: req, dispatcher: d}
	if err := d.pool.Submit(job); err != nil {
		message := "queue full"
		if !errors.Is(err, scheduler.ErrQueueFull) {
			message = err.Error()
		}
		if markErr := d.runs.MarkFailed(ctx, run.ID, message, d.now()); markErr != nil {
			d.logger.Error("Failed to mark sync run failed", zap.String("sync_id", run.ID.String()), zap.Error(markErr))
		}
		return nil, false, newError(ErrUnavailable, "Sync could not be queued: %s", message)
	}

	d.logger.Info("Sync queued",
		zap.String("user_id", req.UserID.String()),
		zap.String("item_id", req.ItemID),
		zap.String("sync_id", run.ID.String()),
	)
	return run, true, nil
}

// EnqueueAll queues a default-window sync for every linked item.
func (d *SyncDispatcher) EnqueueAll(ctx context.Context) {
	items, err := d.items.ListAll(ctx)
	if err != nil {
		d.logger.Error("Failed to list linked items", zap.Error(err))
		return
	}

	queued := 0
	for _, item := range items {
		_, ok, err := d.Enqueue(ctx, SyncRequest{UserID: item.UserID, ItemID: item.ItemID})
		if err != nil {
			d.logger.Warn("Failed to queue sync", zap.String("item_id", item.ItemID), zap.Error(err))
			continue
		}
		if ok {
			queued++
		}
	}
	d.logger.Info("Periodic sync queued", zap.Int("queued", queued), zap.Int("items", len(items)))
}

func (d *SyncDispatcher) GetRun(ctx context.Context, userID, id uuid.UUID) (*dto.SyncRunResponse, error) {
	run, err := d.runs.GetForUser(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Sync run not found")
		}
		return nil, err
	}
	return toSyncRunResponse(run), nil
}

func (d *SyncDispatcher) execute(ctx context.Context, run *models.SyncRun, req SyncRequest) error {
	// status writes must land even when the job context has expired
	statusCtx := context.WithoutCancel(ctx)

	if err := d.runs.MarkRunning(statusCtx, run.ID, d.now()); err != nil {
		err = fmt.Errorf("failed to mark sync running: %w", err)
		d.markFailed(statusCtx, run.ID, err)
		return err
	}

	result, err := d.sync(ctx, req)
	if err != nil {
		d.markFailed(statusCtx, run.ID, err)
		return err
	}

	if err := d.runs.MarkSucceeded(statusCtx, run.ID, result.Fetched, result.Inserted, d.now()); err != nil {
		err = fmt.Errorf("failed to record sync result: %w", err)
		d.markFailed(statusCtx, run.ID, err)
		return err
	}
	return nil
}

// sync converts a panic into an error so the run is still closed.
func (d *SyncDispatcher) sync(ctx context.Context, req SyncRequest) (result *SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", scheduler.ErrJobPanicked, r)
		}
	}()
	return d.syncer.Sync(ctx, req)
}

// markFailed closes the run so it stops blocking new syncs for its item.
func (d *SyncDispatcher) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	if err := d.runs.MarkFailed(ctx, id, runErrorMessage(cause), d.now()); err != nil {
		d.logger.Error("Failed to mark sync run failed", zap.String("sync_id", id.String()), zap.Error(err))
	}
}

// runErrorMessage is the text stored on a failed run. Plaid failures the
// user has to act on get a plain instruction instead of the raw API error.
func runErrorMessage(err error) string {
	var apiErr *plaid.APIError
	switch {
	case errors.Is(err, plaid.ErrItemLoginRequired):
		return "Bank login expired, relink the item to resume syncing"
	case errors.Is(err, plaid.ErrInvalidToken):
		return "Plaid rejected the access token, relink the item to resume syncing"
	case errors.Is(err, plaid.ErrRateLimited):
		return "Plaid rate limit reached, try again later"
	case errors.As(err, &apiErr) && apiErr.IsRetryable():
		return "Plaid is temporarily unavailable, try again later: " + err.Error()
	}
	return err.Error()
}

type syncJob struct {
	run        *models.SyncRun
	req        SyncRequest
	dispatcher *SyncDispatcher
}

func (j *syncJob) Execute(ctx context.Context) error {
	return j.dispatcher.execute(ctx, j.run, j.req)
}

func (j *syncJob) Description() string {
	return "transaction sync " + j.req.ItemID
}

func (j *syncJob) UserID() string {
	return j.req.UserID.String()
}

func toSyncRunResponse(run *models.SyncRun) *dto.SyncRunResponse {
	return &dto.SyncRunResponse{
		ID:          run.ID.String(),
		ItemID:      run.ItemID,
		Status:      string(run.Status),
		WindowStart: formatDatePtr(run.WindowStart),
		WindowEnd:   formatDatePtr(run.WindowEnd),
		Fetched:     run.Fetched,
		Inserted:    run.Inserted,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt.Format(time.RFC3339),
		StartedAt:   formatTimePtr(run.StartedAt),
		FinishedAt:  formatTimePtr(run.FinishedAt),
	}
}
