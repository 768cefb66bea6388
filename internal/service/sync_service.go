package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finsight/internal/models"
	"finsight/internal/repository"
	"finsight/pkg/config"
	"finsight/pkg/plaid"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	syncMeter         = otel.Meter("finsight/sync")
	syncFetched, _    = syncMeter.Int64Counter("sync.transactions.fetched", metric.WithDescription("Transactions received from the aggregator"))
	syncInserted, _   = syncMeter.Int64Counter("sync.transactions.inserted", metric.WithDescription("Transactions newly stored"))
	syncDuplicates, _ = syncMeter.Int64Counter("sync.transactions.duplicate", metric.WithDescription("Transactions skipped as already stored"))
	syncRunsFailed, _ = syncMeter.Int64Counter("sync.runs.failed", metric.WithDescription("Sync runs that did not commit"))
)

// TransactionFetcher is the part of the aggregation client the pipeline uses.
type TransactionFetcher interface {
	GetTransactions(ctx context.Context, accessToken string, startDate, endDate time.Time, opts *plaid.TransactionsGetOptions) (*plaid.TransactionsGetResponse, error)
}

// SyncStore gives the pipeline its item lookup and a transactional scope.
type SyncStore interface {
	GetItem(ctx context.Context, userID uuid.UUID, itemID string) (*models.PlaidItem, error)
	InTx(ctx context.Context, fn func(tx SyncTx) error) error
}

// SyncTx is the set of writes performed inside one sync transaction.
type SyncTx interface {
	AccountIDsByPlaidID(ctx context.Context, userID uuid.UUID) (map[string]uuid.UUID, error)
	TransactionExists(ctx context.Context, externalID string) (bool, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) (bool, error)
	TouchAccounts(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

type SyncRequest struct {
	UserID     uuid.UUID
	ItemID     string
	StartDate  *time.Time
	EndDate    *time.Time
	AccountIDs []string
}

type SyncResult struct {
	ItemID      string
	StartDate   time.Time
	EndDate     time.Time
	Fetched     int
	Inserted    int
	Duplicates  int
	Unmatched   int
	Pending     int
	Pages       int
	CompletedAt time.Time
}

// draft is a fetched record before it is matched against storage.
type draft struct {
	externalID     string
	plaidAccountID string
	amount         decimal.Decimal
	date           time.Time
	merchant       string
	description    string
	category       string
	pending        bool
}

type SyncService struct {
	client       TransactionFetcher
	store        SyncStore
	lookbackDays int
	pageSize     int
	logger       *zap.Logger
	now          func() time.Time
}

func NewSyncService(client TransactionFetcher, store SyncStore, cfg *config.SyncConfig, logger *zap.Logger) *SyncService {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > config.MaxPlaidPageSize {
		pageSize = config.MaxPlaidPageSize
	}
	return &SyncService{
		client:       client,
		store:        store,
		lookbackDays: cfg.LookbackDays,
		pageSize:     pageSize,
		logger:       logger,
		now:          time.Now,
	}
}

// Window resolves the requested date range. Missing bounds default to today
// and today minus the lookback period.
func (s *SyncService) Window(start, end *time.Time) (time.Time, time.Time, error) {
	to := startOfDay(s.now())
	if end != nil {
		to = startOfDay(*end)
	}
	from := to.AddDate(0, 0, -s.lookbackDays)
	if start != nil {
		from = startOfDay(*start)
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, invalid("start_date must not be after end_date")
	}
	return from, to, nil
}

// Sync pulls every page for the window and merges it into storage in one
// transaction. Records whose external id is already stored are skipped, so
// running the same sync twice inserts nothing the second time.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	log := s.logger.With(zap.String("user_id", req.UserID.String()), zap.String("item_id", req.ItemID))

	item, err := s.store.GetItem(ctx, req.UserID, req.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Item not found")
		}
		return nil, fmt.Errorf("failed to load item: %w", err)
	}

	from, to, err := s.Window(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{ItemID: req.ItemID, StartDate: from, EndDate: to}

	drafts, err := s.fetchAll(ctx, item.AccessToken, from, to, req.AccountIDs, result)
	if err != nil {
		syncRunsFailed.Add(ctx, 1)
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx SyncTx) error {
		return s.merge(ctx, tx, req.UserID, drafts, result)
	})
	if err != nil {
		syncRunsFailed.Add(ctx, 1)
		return nil, fmt.Errorf("failed to store transactions: %w", err)
	}

	attrs := metric.WithAttributes(attribute.String("source", string(models.SourcePlaid)))
	syncFetched.Add(ctx, int64(result.Fetched), attrs)
	syncInserted.Add(ctx, int64(result.Inserted), attrs)
	syncDuplicates.Add(ctx, int64(result.Duplicates), attrs)

	log.Info("Transactions synced",
		zap.String("start_date", formatDate(from)),
		zap.String("end_date", formatDate(to)),
		zap.Int("pages", result.Pages),
		zap.Int("fetched", result.Fetched),
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("pending", result.Pending),
	)
	return result, nil
}

// fetchAll walks /transactions/get with offset pagination until the offset
// reaches the total reported by the latest page.
func (s *SyncService) fetchAll(ctx context.Context, accessToken string, from, to time.Time, accountIDs []string, result *SyncResult) ([]draft, error) {
	var drafts []draft
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.client.GetTransactions(ctx, accessToken, from, to, &plaid.TransactionsGetOptions{
			AccountIDs: accountIDs,
			Count:      s.pageSize,
			Offset:     offset,
		})
		if err != nil {
			return nil, upstream(err, "Failed to fetch transactions at offset %d", offset)
		}
		result.Pages++

		for _, t := range page.Transactions {
			d, err := toDraft(t)
			if err != nil {
				return nil, upstream(err, "Malformed transaction %s", t.TransactionID)
			}
			drafts = append(drafts, d)
		}
		offset += len(page.Transactions)

		if offset >= page.TotalTransactions {
			break
		}
		if len(page.Transactions) == 0 {
			return nil, upstream(nil, "Empty page at offset %d of %d", offset, page.TotalTransactions)
		}
	}

	result.Fetched = len(drafts)
	return drafts, nil
}

func (s *SyncService) merge(ctx context.Context, tx SyncTx, userID uuid.UUID, drafts []draft, result *SyncResult) error {
	accountMap, err := tx.AccountIDsByPlaidID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	seen := make(map[string]struct{}, len(drafts))
	now := s.now()

	for _, d := range drafts {
		if d.pending {
			result.Pending++
		}
		if _, ok := seen[d.externalID]; ok {
			result.Duplicates++
			continue
		}
		seen[d.externalID] = struct{}{}

		exists, err := tx.TransactionExists(ctx, d.externalID)
		if err != nil {
			return err
		}
		if exists {
			result.Duplicates++
			continue
		}

		record := &models.Transaction{
			ID:           uuid.New(),
			ExternalID:   d.externalID,
			Amount:       d.amount,
			Date:         d.date,
			MerchantName: strPtr(d.merchant),
			Description:  strPtr(d.description),
			Category:     strPtr(d.category),
			Source:       models.SourcePlaid,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if id, ok := accountMap[d.plaidAccountID]; ok {
			record.AccountID = &id
		} else {
			result.Unmatched++
		}

		inserted, err := tx.InsertTransaction(ctx, record)
		if err != nil {
			return err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
	}

	completedAt := s.now()
	if _, err := tx.TouchAccounts(ctx, userID, completedAt); err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	result.CompletedAt = completedAt
	return nil
}

func toDraft(t plaid.Transaction) (draft, error) {
	date, err := plaid.ParseDate(t.Date)
	if err != nil {
		return draft{}, err
	}

	merchant := t.MerchantName
	if merchant == "" {
		merchant = t.Name
	}

	var category string
	if len(t.Category) > 0 {
		category = t.Category[0]
	}

	return draft{
		externalID:     t.TransactionID,
		plaidAccountID: t.AccountID,
		amount:         decimal.NewFromFloat(t.Amount).Round(2),
		date:           date,
		merchant:       merchant,
		description:    t.Name,
		category:       category,
		pending:        t.Pending,
	}, nil
}
