package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finsight/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errNoRow = errors.New("no row")

type recordedQuery struct {
	sql  string
	args []any
}

// recordingDB captures every statement and answers with a fixed command tag
// and no rows.
type recordingDB struct {
	tag     string
	queries []recordedQuery
}

func (db *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.queries = append(db.queries, recordedQuery{sql: sql, args: args})
	return pgconn.NewCommandTag(db.tag), nil
}

func (db *recordingDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.queries = append(db.queries, recordedQuery{sql: sql, args: args})
	return emptyRows{}, nil
}

func (db *recordingDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, recordedQuery{sql: sql, args: args})
	return errRow{}
}

func (db *recordingDB) last(t *testing.T) recordedQuery {
	t.Helper()
	if len(db.queries) == 0 {
		t.Fatal("no statement was executed")
	}
	return db.queries[len(db.queries)-1]
}

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...any) error                            { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errNoRow }

func TestTransactionCreate(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{name: "new record", tag: "INSERT 0 1", want: true},
		{name: "known external id", tag: "INSERT 0 0", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &recordingDB{tag: tt.tag}
			repo := NewTransactionRepository(db, zap.NewNop())
			accountID := uuid.New()

			created, err := repo.Create(context.Background(), &models.Transaction{
				ID:         uuid.New(),
				ExternalID: "plaid-tx-1",
				AccountID:  &accountID,
				Amount:     decimal.RequireFromString("12.50"),
				Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if created != tt.want {
				t.Errorf("Create() = %v, want %v", created, tt.want)
			}

			q := db.last(t)
			if !strings.HasPrefix(q.sql, "INSERT INTO transactions") {
				t.Errorf("sql = %q, want insert into transactions", q.sql)
			}
			if !strings.HasSuffix(q.sql, "ON CONFLICT (external_id) DO NOTHING") {
				t.Errorf("sql = %q, want ON CONFLICT (external_id) DO NOTHING suffix", q.sql)
			}
			if q.args[1] != "plaid-tx-1" {
				t.Errorf("external_id arg = %v", q.args[1])
			}
		})
	}
}

func TestTransactionReads_ScopeToUser(t *testing.T) {
	userID := uuid.New()
	f := TransactionFilter{UserID: userID}

	tests := []struct {
		name string
		run  func(r *TransactionRepository) error
	}{
		{name: "List", run: func(r *TransactionRepository) error {
			_, err := r.List(context.Background(), f, 0)
			return err
		}},
		{name: "ListUncategorized", run: func(r *TransactionRepository) error {
			_, err := r.ListUncategorized(context.Background(), userID, 50)
			return err
		}},
		{name: "ListReimbursements", run: func(r *TransactionRepository) error {
			_, err := r.ListReimbursements(context.Background(), f)
			return err
		}},
		{name: "SpendingByAccount", run: func(r *TransactionRepository) error {
			_, err := r.SpendingByAccount(context.Background(), f)
			return err
		}},
		{name: "CategoryTotals", run: func(r *TransactionRepository) error {
			_, err := r.CategoryTotals(context.Background(), f, false)
			return err
		}},
		{name: "CategoryTotals ai", run: func(r *TransactionRepository) error {
			_, err := r.CategoryTotals(context.Background(), f, true)
			return err
		}},
		{name: "Summary", run: func(r *TransactionRepository) error {
			_, err := r.Summary(context.Background(), f)
			if errors.Is(err, errNoRow) {
				return nil
			}
			return err
		}},
		{name: "GetForUser", run: func(r *TransactionRepository) error {
			_, err := r.GetForUser(context.Background(), userID, uuid.New())
			if errors.Is(err, errNoRow) {
				return nil
			}
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &recordingDB{}
			if err := tt.run(NewTransactionRepository(db, zap.NewNop())); err != nil {
				t.Fatalf("error = %v", err)
			}

			q := db.last(t)
			if !strings.Contains(q.sql, "JOIN accounts a ON a.id = t.account_id") {
				t.Errorf("sql = %q, want join on accounts", q.sql)
			}
			if !strings.Contains(q.sql, "a.user_id = $1") {
				t.Errorf("sql = %q, want a.user_id = $1", q.sql)
			}
			// uuid.UUID is a driver.Valuer, so squirrel binds its string form
			if len(q.args) == 0 || q.args[0] != userID.String() {
				t.Errorf("args = %v, want user id first", q.args)
			}
		})
	}
}

func TestApplyFilter(t *testing.T) {
	userID, accountID := uuid.New(), uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	db := &recordingDB{}
	repo := NewTransactionRepository(db, zap.NewNop())
	_, err := repo.List(context.Background(), TransactionFilter{
		UserID:     userID,
		StartDate:  &start,
		EndDate:    &end,
		AccountIDs: []uuid.UUID{accountID},
	}, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	q := db.last(t)
	for _, want := range []string{
		"a.user_id = $1",
		"t.date >= $2",
		"t.date <= $3",
		"t.account_id IN ($4)",
		"ORDER BY t.date ASC, t.id ASC",
		"LIMIT 10",
	} {
		if !strings.Contains(q.sql, want) {
			t.Errorf("sql = %q, missing %q", q.sql, want)
		}
	}
	if len(q.args) != 4 || q.args[0] != userID.String() || q.args[3] != accountID {
		t.Errorf("args = %v", q.args)
	}
}

func TestAccountTouchByUser(t *testing.T) {
	userID := uuid.New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db := &recordingDB{tag: "UPDATE 3"}

	n, err := NewAccountRepository(db, zap.NewNop()).TouchByUser(context.Background(), userID, at)
	if err != nil {
		t.Fatalf("TouchByUser() error = %v", err)
	}
	if n != 3 {
		t.Errorf("TouchByUser() = %d, want 3", n)
	}

	q := db.last(t)
	want := "UPDATE accounts SET last_sync_timestamp = $1, updated_at = $2 WHERE user_id = $3"
	if q.sql != want {
		t.Errorf("sql = %q, want %q", q.sql, want)
	}
	if len(q.args) != 3 || q.args[2] != userID.String() {
		t.Errorf("args = %v", q.args)
	}
}

func TestSyncRunCreatePending(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{name: "no active run", tag: "INSERT 0 1", want: true},
		{name: "active run exists", tag: "INSERT 0 0", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &recordingDB{tag: tt.tag}
			created, err := NewSyncRunRepository(db, zap.NewNop()).CreatePending(context.Background(), &models.SyncRun{
				ID:     uuid.New(),
				UserID: uuid.New(),
				ItemID: "item-1",
			})
			if err != nil {
				t.Fatalf("CreatePending() error = %v", err)
			}
			if created != tt.want {
				t.Errorf("CreatePending() = %v, want %v", created, tt.want)
			}
			q := db.last(t)
			if !strings.HasSuffix(q.sql, "ON CONFLICT (item_id) WHERE status IN ('pending', 'running') DO NOTHING") {
				t.Errorf("sql = %q", q.sql)
			}
		})
	}
}
