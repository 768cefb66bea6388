package llm

import (
	"context"
	"fmt"

	"finsight/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

// gigaChatBackend wraps the GigaChat SDK. The SDK configures sampling per
// model, so one model is kept for insights and one for short tasks.
type gigaChatBackend struct {
	client       *gigago.Client
	insightModel *gigago.GenerativeModel
	taskModel    *gigago.GenerativeModel
	modelName    string
}

func newGigaChatBackend(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*gigaChatBackend, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}

	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	insightModel := client.GenerativeModel(cfg.Model)
	insightModel.SystemInstruction = analystSystemPrompt
	insightModel.Temperature = 0.7

	taskModel := client.GenerativeModel(cfg.Model)
	taskModel.Temperature = 0.3

	return &gigaChatBackend{
		client:       client,
		insightModel: insightModel,
		taskModel:    taskModel,
		modelName:    cfg.Model,
	}, nil
}

func (b *gigaChatBackend) Chat(ctx context.Context, req chatRequest) (string, error) {
	model := b.taskModel
	if req.Creative {
		model = b.insightModel
	}

	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: req.Prompt},
	}

	resp, err := model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

func (b *gigaChatBackend) Model() string {
	return b.modelName
}

func (b *gigaChatBackend) Close() error {
	if b.client != nil {
		b.client.Close()
	}
	return nil
}
