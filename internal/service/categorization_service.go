package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finsight/internal/dto"
	"finsight/internal/llm"
	"finsight/internal/models"
	"finsight/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBulkLimit = 100
	maxBulkLimit     = 1000
	bulkConcurrency  = 4
	bulkBatchTimeout = 15 * time.Minute
)

type CategorizationStore interface {
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error)
	ListUncategorized(ctx context.Context, userID uuid.UUID, limit uint64) ([]*models.Transaction, error)
	SetAICategory(ctx context.Context, id uuid.UUID, category string) error
	SetReimbursement(ctx context.Context, id uuid.UUID, flag bool) error
}

type CategorizationService struct {
	store    CategorizationStore
	provider llm.Provider
	logger   *zap.Logger

	background sync.WaitGroup
}

func NewCategorizationService(store CategorizationStore, provider llm.Provider, logger *zap.Logger) *CategorizationService {
	return &CategorizationService{
		store:    store,
		provider: provider,
		logger:   logger,
	}
}

func (s *CategorizationService) Categorize(ctx context.Context, userID, txID uuid.UUID) (*dto.CategorizeResponse, error) {
	tx, err := s.load(ctx, userID, txID)
	if err != nil {
		return nil, err
	}

	category, err := s.provider.CategorizeTransaction(ctx, toRecord(tx))
	if err != nil {
		return nil, upstream(err, "Failed to categorize transaction")
	}
	if err := s.store.SetAICategory(ctx, tx.ID, category); err != nil {
		return nil, fmt.Errorf("failed to save category: %w", err)
	}

	return &dto.CategorizeResponse{
		TransactionID: tx.ID.String(),
		AICategory:    category,
	}, nil
}

// BulkCategorize picks up to limit uncategorized records and categorizes
// them in the background. It returns as soon as the batch is scheduled.
func (s *CategorizationService) BulkCategorize(ctx context.Context, userID uuid.UUID, limit int) (*dto.BulkCategorizeResponse, error) {
	if limit <= 0 {
		limit = defaultBulkLimit
	}
	limit = min(limit, maxBulkLimit)

	transactions, err := s.store.ListUncategorized(ctx, userID, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}
	if len(transactions) == 0 {
		return &dto.BulkCategorizeResponse{Message: "No uncategorized transactions found", Count: 0}, nil
	}

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bulkBatchTimeout)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		s.categorizeBatch(bgCtx, userID, transactions)
	}()

	return &dto.BulkCategorizeResponse{
		Message: "Bulk categorization started",
		Count:   len(transactions),
	}, nil
}

func (s *CategorizationService) categorizeBatch(ctx context.Context, userID uuid.UUID, transactions []*models.Transaction) {
	var (
		mu      sync.Mutex
		updated int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, tx := range transactions {
		g.Go(func() error {
			category, err := s.provider.CategorizeTransaction(gctx, toRecord(tx))
			if err == nil {
				err = s.store.SetAICategory(gctx, tx.ID, category)
			}
			if err != nil {
				// one bad record must not stop the batch
				s.logger.Error("Failed to categorize transaction",
					zap.String("transaction_id", tx.ID.String()),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			updated++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("Bulk categorization finished",
		zap.String("user_id", userID.String()),
		zap.Int("selected", len(transactions)),
		zap.Int("categorized", updated),
	)
}

// Wait blocks until every background batch has finished.
func (s *CategorizationService) Wait() {
	s.background.Wait()
}

// DetectReimbursement flags the record when the detector says it is a
// reimbursement. A negative answer leaves an existing flag untouched.
func (s *CategorizationService) DetectReimbursement(ctx context.Context, userID, txID uuid.UUID) (*dto.ReimbursementDetectionResponse, error) {
	tx, err := s.load(ctx, userID, txID)
	if err != nil {
		return nil, err
	}

	isReimbursement, confidence, err := s.provider.DetectReimbursement(ctx, toRecord(tx))
	if err != nil {
		return nil, upstream(err, "Failed to detect reimbursement")
	}
	if isReimbursement {
		if err := s.store.SetReimbursement(ctx, tx.ID, true); err != nil {
			return nil, fmt.Errorf("failed to flag reimbursement: %w", err)
		}
	}

	return &dto.ReimbursementDetectionResponse{
		TransactionID:   tx.ID.String(),
		IsReimbursement: isReimbursement,
		Confidence:      confidence,
	}, nil
}

func (s *CategorizationService) load(ctx context.Context, userID, txID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.store.GetForUser(ctx, userID, txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("Transaction not found")
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return tx, nil
}
