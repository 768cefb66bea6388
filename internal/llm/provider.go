// Package llm is the gateway to the text-generation backends used for
// spending insights, categorization and reimbursement detection.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finsight/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrEmptyResponse = errors.New("llm: empty response")

// Record is the view of a transaction that is handed to a backend.
type Record struct {
	Date         string
	MerchantName string
	Amount       decimal.Decimal
	Category     string
	Description  string
}

type Provider interface {
	GenerateInsight(ctx context.Context, prompt string, records []Record) (string, error)
	CategorizeTransaction(ctx context.Context, record Record) (string, error)
	// DetectReimbursement never fails on a bad backend answer; it falls back
	// to keyword matching instead.
	DetectReimbursement(ctx context.Context, record Record) (bool, float64, error)
	Model() string
	Close() error
}

type chatRequest struct {
	System    string
	Prompt    string
	Creative  bool
	MaxTokens int
}

// chatBackend is one concrete completion API.
type chatBackend interface {
	Chat(ctx context.Context, req chatRequest) (string, error)
	Model() string
	Close() error
}

// NewProvider builds the backend named by cfg.Provider.
func NewProvider(ctx context.Context, cfg *config.LLMConfig, logger *zap.Logger) (Provider, error) {
	var (
		backend chatBackend
		err     error
	)

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOllama:
		backend = newOllamaBackend(&cfg.Ollama)
	case config.ProviderOpenAI:
		backend, err = newOpenAIBackend(&cfg.OpenAI)
	case config.ProviderGigaChat:
		backend, err = newGigaChatBackend(ctx, &cfg.GigaChat, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: must be one of ollama, openai, gigachat", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("LLM provider initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", backend.Model()),
	)

	return newGateway(backend, logger), nil
}

type gateway struct {
	backend chatBackend
	logger  *zap.Logger
}

func newGateway(backend chatBackend, logger *zap.Logger) *gateway {
	return &gateway{
		backend: backend,
		logger:  logger,
	}
}

func (g *gateway) Model() string {
	return g.backend.Model()
}

func (g *gateway) Close() error {
	return g.backend.Close()
}

func (g *gateway) GenerateInsight(ctx context.Context, prompt string, records []Record) (string, error) {
	content, err := g.backend.Chat(ctx, chatRequest{
		System:    analystSystemPrompt,
		Prompt:    insightPrompt(prompt, records),
		Creative:  true,
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate insight: %w", err)
	}

	content = cleanCompletion(content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (g *gateway) CategorizeTransaction(ctx context.Context, record Record) (string, error) {
	content, err := g.backend.Chat(ctx, chatRequest{
		Prompt:    categorizePrompt(record),
		MaxTokens: 20,
	})
	if err != nil {
		return "", fmt.Errorf("failed to categorize transaction: %w", err)
	}
	return normalizeCategory(content), nil
}

func (g *gateway) DetectReimbursement(ctx context.Context, record Record) (bool, float64, error) {
	content, err := g.backend.Chat(ctx, chatRequest{
		Prompt:    reimbursementPrompt(record),
		MaxTokens: 150,
	})
	if err != nil {
		g.logger.Warn("Reimbursement detection failed, using keyword fallback", zap.Error(err))
		flag, confidence := KeywordReimbursement(record)
		return flag, confidence, nil
	}

	flag, confidence, ok := parseReimbursement(content)
	if !ok {
		g.logger.Debug("Unparseable reimbursement answer, using keyword fallback", zap.String("content", content))
		flag, confidence = KeywordReimbursement(record)
	}
	return flag, confidence, nil
}

func normalizeCategory(content string) string {
	category := cleanCompletion(content)
	category = strings.Trim(category, "\"'`.")
	category = strings.TrimSpace(category)
	if category == "" {
		return "Other"
	}
	return category
}
