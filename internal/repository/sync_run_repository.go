package repository

import (
	"context"
	"time"

	"finsight/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var syncRunColumns = []string{
	"id", "user_id", "item_id", "status", "window_start", "window_end",
	"fetched", "inserted", "error", "created_at", "started_at", "finished_at",
}

var activeStatuses = []models.SyncStatus{models.SyncPending, models.SyncRunning}

type SyncRunRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewSyncRunRepository(db DBTX, logger *zap.Logger) *SyncRunRepository {
	return &SyncRunRepository{
		db:     db,
		logger: logger,
	}
}

// CreatePending inserts a pending run. It returns false without writing
// when the item already has a pending or running run.
func (r *SyncRunRepository) CreatePending(ctx context.Context, run *models.SyncRun) (bool, error) {
	query := squirrel.Insert("sync_runs").
		Columns("id", "user_id", "item_id", "status", "window_start", "window_end", "created_at").
		Values(run.ID, run.UserID, run.ItemID, models.SyncPending, run.WindowStart, run.WindowEnd, run.CreatedAt).
		Suffix("ON CONFLICT (item_id) WHERE status IN ('pending', 'running') DO NOTHING").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SyncRunRepository) GetActiveForItem(ctx context.Context, itemID string) (*models.SyncRun, error) {
	return r.getOne(ctx, squirrel.Eq{"item_id": itemID, "status": activeStatuses})
}

func (r *SyncRunRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.SyncRun, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id, "user_id": userID})
}

func (r *SyncRunRepository) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":     models.SyncRunning,
		"started_at": at,
	})
}

func (r *SyncRunRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, fetched, inserted int, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":      models.SyncSucceeded,
		"fetched":     fetched,
		"inserted":    inserted,
		"finished_at": at,
	})
}

func (r *SyncRunRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	return r.update(ctx, id, map[string]any{
		"status":      models.SyncFailed,
		"error":       message,
		"finished_at": at,
	})
}

// FailStale fails every run still pending or running. Called at start-up,
// when no worker from a previous process can still own them.
func (r *SyncRunRepository) FailStale(ctx context.Context, message string, at time.Time) (int64, error) {
	query := squirrel.Update("sync_runs").
		Set("status", models.SyncFailed).
		Set("error", message).
		Set("finished_at", at).
		Where(squirrel.Eq{"status": activeStatuses}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SyncRunRepository) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	query := squirrel.Update("sync_runs").
		SetMap(values).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SyncRunRepository) getOne(ctx context.Context, where squirrel.Eq) (*models.SyncRun, error) {
	query := squirrel.Select(syncRunColumns...).
		From("sync_runs").
		Where(where).
		OrderBy("created_at DESC").
		Limit(1).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var run models.SyncRun
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&run.ID, &run.UserID, &run.ItemID, &run.Status, &run.WindowStart, &run.WindowEnd,
		&run.Fetched, &run.Inserted, &run.Error, &run.CreatedAt, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &run, nil
}
