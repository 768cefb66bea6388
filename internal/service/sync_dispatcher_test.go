package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsight/internal/models"
	"finsight/internal/repository"
	"finsight/internal/scheduler"
	"finsight/pkg/plaid"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type mockSyncer struct {
	SyncFunc func(ctx context.Context, req SyncRequest) (*SyncResult, error)
}

func (m *mockSyncer) Window(start, end *time.Time) (time.Time, time.Time, error) {
	to := fixedNow
	if end != nil {
		to = *end
	}
	from := to.AddDate(0, 0, -730)
	if start != nil {
		from = *start
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, invalid("start_date must not be after end_date")
	}
	return from, to, nil
}

func (m *mockSyncer) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	return m.SyncFunc(ctx, req)
}

type mockRunStore struct {
	runs map[uuid.UUID]*models.SyncRun
}

func newMockRunStore() *mockRunStore {
	return &mockRunStore{runs: make(map[uuid.UUID]*models.SyncRun)}
}

func (m *mockRunStore) CreatePending(_ context.Context, run *models.SyncRun) (bool, error) {
	for _, r := range m.runs {
		if r.ItemID == run.ItemID && r.Status.Active() {
			return false, nil
		}
	}
	stored := *run
	stored.Status = models.SyncPending
	m.runs[run.ID] = &stored
	return true, nil
}

func (m *mockRunStore) GetActiveForItem(_ context.Context, itemID string) (*models.SyncRun, error) {
	for _, r := range m.runs {
		if r.ItemID == itemID && r.Status.Active() {
			return r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockRunStore) GetForUser(_ context.Context, userID, id uuid.UUID) (*models.SyncRun, error) {
	r, ok := m.runs[id]
	if !ok || r.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

func (m *mockRunStore) MarkRunning(_ context.Context, id uuid.UUID, at time.Time) error {
	m.runs[id].Status = models.SyncRunning
	m.runs[id].StartedAt = &at
	return nil
}

func (m *mockRunStore) MarkSucceeded(_ context.Context, id uuid.UUID, fetched, inserted int, at time.Time) error {
	r := m.runs[id]
	r.Status, r.Fetched, r.Inserted, r.FinishedAt = models.SyncSucceeded, fetched, inserted, &at
	return nil
}

func (m *mockRunStore) MarkFailed(_ context.Context, id uuid.UUID, message string, at time.Time) error {
	r := m.runs[id]
	r.Status, r.Error, r.FinishedAt = models.SyncFailed, &message, &at
	return nil
}

type mockItemStore struct {
	items []*models.PlaidItem
}

func (m *mockItemStore) GetForUser(_ context.Context, userID uuid.UUID, itemID string) (*models.PlaidItem, error) {
	for _, it := range m.items {
		if it.UserID == userID && it.ItemID == itemID {
			return it, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockItemStore) ListAll(context.Context) ([]*models.PlaidItem, error) {
	return m.items, nil
}

type mockPool struct {
	jobs      []scheduler.Job
	submitErr error
}

func (m *mockPool) Submit(job scheduler.Job) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type dispatcherFixture struct {
	userID uuid.UUID
	runs   *mockRunStore
	pool   *mockPool
	syncer *mockSyncer
	d      *SyncDispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		userID: uuid.New(),
		runs:   newMockRunStore(),
		pool:   &mockPool{},
		syncer: &mockSyncer{SyncFunc: func(context.Context, SyncRequest) (*SyncResult, error) {
			return &SyncResult{Fetched: 12, Inserted: 10}, nil
		}},
	}
	items := &mockItemStore{items: []*models.PlaidItem{
		{ID: uuid.New(), UserID: f.userID, ItemID: "item-1"},
		{ID: uuid.New(), UserID: f.userID, ItemID: "item-2"},
	}}
	f.d = NewSyncDispatcher(f.syncer, f.runs, items, f.pool, zap.NewNop())
	return f
}

func TestEnqueue_RunsJobAndRecordsOutcome(t *testing.T) {
	f := newDispatcherFixture()

	run, queued, err := f.d.Enqueue(context.Background(), SyncRequest{UserID: f.userID, ItemID: "item-1"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !queued {
		t.Error("Enqueue() queued = false, want true")
	}
	if run.Status != models.SyncPending || run.WindowStart == nil || run.WindowEnd == nil {
		t.Errorf("run = %+v, want pending with resolved window", run)
	}
	if len(f.pool.jobs) != 1 {
		t.Fatalf("submitted %d jobs, want 1", len(f.pool.jobs))
	}

	if err := f.pool.jobs[0].Execute(context.Background()); err != nil {
		t.Fatalf("job Execute() error = %v", err)
	}

	got, err := f.d.GetRun(context.Background(), f.userID, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != "succeeded" || got.Fetched != 12 || got.Inserted != 10 || got.FinishedAt == nil {
		t.Errorf("run = %+v", got)
	}
}

func TestEnqueue_ReturnsActiveRun(t *testing.T) {
	f := newDispatcherFixture()
	ctx := context.Background()

	first, _, err := f.d.Enqueue(ctx, SyncRequest{UserID: f.userID, ItemID: "item-1"})
	if err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	second, queued, err := f.d.Enqueue(ctx, SyncRequest{UserID: f.userID, ItemID: "item-1"})
	if err != nil {
		t.Fatalf("second Enqueue() error = %v", err)
	}
	if queued {
		t.Error("second Enqueue() queued = true, want false")
	}

	if second.ID != first.ID {
		t.Errorf("second run %s, want active run %s", second.ID, first.ID)
	}
	if len(f.pool.jobs) != 1 {
		t.Errorf("submitted %d jobs, want 1", len(f.pool.jobs))
	}
}

func TestEnqueue_FailedSyncIsRecorded(t *testing.T) {
	f := newDispatcherFixture()
	f.syncer.SyncFunc = func(context.Context, SyncRequest) (*SyncResult, error) {
		return nil, upstream(errors.New("timeout"), "Failed to fetch transactions at offset 0")
	}

	run, _, _ := f.d.Enqueue(context.Background(), SyncRequest{UserID: f.userID, ItemID: "item-1"})
	if err := f.pool.jobs[0].Execute(context.Background()); !errors.Is(err, ErrUpstream) {
		t.Fatalf("Execute() error = %v, want ErrUpstream", err)
	}

	stored := f.runs.runs[run.ID]
	if stored.Status != models.SyncFailed || stored.Error == nil {
		t.Errorf("run = %+v, want failed with error", stored)
	}

	// a failed run no longer blocks the item
	next, _, err := f.d.Enqueue(context.Background(), SyncRequest{UserID: f.userID, ItemID: "item-1"})
	if err != nil || next.ID == run.ID {
		t.Errorf("Enqueue() after failure = %v, %v", next, err)
	}
}

func TestEnqueue_QueueFull(t *testing.T) {
	f := newDispatcherFixture()
	f.pool.submitErr = scheduler.ErrQueueFull

	_, _, err := f.d.Enqueue(context.Background(), SyncRequest{UserID: f.userID, ItemID: "item-1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Enqueue() error = %v, want ErrUnavailable", err)
	}
	for _, r := range f.runs.runs {
		if r.Status != models.SyncFailed || r.Error == nil || *r.Error != "queue full" {
			t.Errorf("run = %+v, want failed with queue full", r)
		}
	}
}

func TestEnqueue_Validation(t *testing.T) {
	f := newDispatcherFixture()
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		req  SyncRequest
		want error
	}{
		{name: "foreign item", req: SyncRequest{UserID: uuid.New(), ItemID: "item-1"}, want: ErrNotFound},
		{name: "inverted window", req: SyncRequest{UserID: f.userID, ItemID: "item-1", StartDate: &start, EndDate: &end}, want: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := f.d.Enqueue(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Enqueue() error = %v, want %v", err, tt.want)
			}
		})
	}
	if len(f.pool.jobs) != 0 {
		t.Errorf("submitted %d jobs, want 0", len(f.pool.jobs))
	}
}

func TestEnqueueAll(t *testing.T) {
	f := newDispatcherFixture()
	f.d.EnqueueAll(context.Background())

	if len(f.pool.jobs) != 2 {
		t.Errorf("submitted %d jobs, want 2", len(f.pool.jobs))
	}
}

func TestGetRun_OtherUser(t *testing.T) {
	f := newDispatcherFixture()
	run, _, _ := f.d.Enqueue(context.Background(), SyncRequest{UserID: f.userID, ItemID: "item-1"})

	if _, err := f.d.GetRun(context.Background(), uuid.New(), run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
}

// flakyRunStore fails the chosen status writes.
type flakyRunStore struct {
	*mockRunStore
	markRunningErr   error
	markSucceededErr error
}

func (m *flakyRunStore) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.markRunningErr != nil {
		return m.markRunningErr
	}
	return m.mockRunStore.MarkRunning(ctx, id, at)
}

func (m *flakyRunStore) MarkSucceeded(ctx context.Context, id uuid.UUID, fetched, inserted int, at time.Time) error {
	if m.markSucceededErr != nil {
		return m.markSucceededErr
	}
	return m.mockRunStore.MarkSucceeded(ctx, id, fetched, inserted, at)
}

func TestExecute_StatusWriteFailureReleasesItem(t *testing.T) {
	writeErr := errors.New("connection reset")

	tests := []struct {
		name  string
		store func(*mockRunStore) *flakyRunStore
	}{
		{name: "mark running fails", store: func(m *mockRunStore) *flakyRunStore {
			return &flakyRunStore{mockRunStore: m, markRunningErr: writeErr}
		}},
		{name: "mark succeeded fails", store: func(m *mockRunStore) *flakyRunStore {
			return &flakyRunStore{mockRunStore: m, markSucceededErr: writeErr}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture()
			f.d.runs = tt.store(f.runs)
			ctx := context.Background()

			run, _, err := f.d.Enqueue(ctx, SyncRequest{UserID: f.userID, ItemID: "item-1"})
			if err != nil {
				t.Fatalf("Enqueue() error = %v", err)
			}
			if err := f.pool.jobs[0].Execute(ctx); !errors.Is(err, writeErr) {
				t.Fatalf("Execute() error = %v, want %v", err, writeErr)
			}

			stored := f.runs.runs[run.ID]
			if stored.Status != models.SyncFailed || stored.Error == nil {
				t.Errorf("run = %+v, want failed with error", stored)
			}

			next, _, err := f.d.Enqueue(ctx, SyncRequest{UserID: f.userID, ItemID: "item-1"})
			if err != nil {
				t.Fatalf("Enqueue() after failure error = %v", err)
			}
			if next.ID == run.ID || len(f.pool.jobs) != 2 {
				t.Errorf("second Enqueue() returned %s with %d jobs, want a new run", next.ID, len(f.pool.jobs))
			}
		})
	}
}

func TestRunErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "login required",
			err:  upstream(&plaid.APIError{StatusCode: 400, ErrorType: "ITEM_ERROR", ErrorCode: "ITEM_LOGIN_REQUIRED"}, "Failed to fetch transactions at offset 0"),
			want: "Bank login expired, relink the item to resume syncing",
		},
		{
			name: "invalid token",
			err:  upstream(&plaid.APIError{StatusCode: 400, ErrorCode: "INVALID_ACCESS_TOKEN"}, "Failed to fetch transactions at offset 0"),
			want: "Plaid rejected the access token, relink the item to resume syncing",
		},
		{
			name: "rate limited",
			err:  upstream(&plaid.APIError{StatusCode: 429, ErrorType: "RATE_LIMIT_EXCEEDED"}, "Failed to fetch transactions at offset 0"),
			want: "Plaid rate limit reached, try again later",
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runErrorMessage(tt.err); got != tt.want {
				t.Errorf("runErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecute_LoginRequiredStoredOnRun(t *testing.T) {
	f := newDispatcherFixture()
	f.syncer.SyncFunc = func(context.Context, SyncRequest) (*SyncResult, error) {
		return nil, upstream(&plaid.APIError{StatusCode: 400, ErrorType: "ITEM_ERROR", ErrorCode: "ITEM_LOGIN_REQUIRED"}, "Failed to fetch transactions at offset 0")
	}

	run, _, _ := f.d.Enqueue(context.Background(), SyncRequest{UserID: f.userID, ItemID: "item-1"})
	_ = f.pool.jobs[0].Execute(context.Background())

	stored := f.runs.runs[run.ID]
	if stored.Error == nil || *stored.Error != "Bank login expired, relink the item to resume syncing" {
		t.Errorf("run error = %v", stored.Error)
	}
}

func TestRunErrorMessage_RetryableAPIError(t *testing.T) {
	err := upstream(&plaid.APIError{StatusCode: 503, ErrorMessage: "down"}, "Failed to fetch transactions at offset 0")
	if got := runErrorMessage(err); got != "Plaid is temporarily unavailable, try again later: "+err.Error() {
		t.Errorf("runErrorMessage() = %q", got)
	}
}

func TestExecute_PanicFailsRun(t *testing.T) {
	f := newDispatcherFixture()
	f.syncer.SyncFunc = func(context.Context, SyncRequest) (*SyncResult, error) {
		panic("index out of range")
	}

	run, _, _ := f.d.Enqueue(context.Background(), SyncRequest{UserID: f.userID, ItemID: "item-1"})
	if err := f.pool.jobs[0].Execute(context.Background()); !errors.Is(err, scheduler.ErrJobPanicked) {
		t.Fatalf("Execute() error = %v, want ErrJobPanicked", err)
	}
	if stored := f.runs.runs[run.ID]; stored.Status != models.SyncFailed {
		t.Errorf("run status = %s, want failed", stored.Status)
	}
}
