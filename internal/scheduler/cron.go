package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron runs fn on a standard five-field schedule.
type Cron struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func NewCron(spec string, fn func(ctx context.Context), logger *zap.Logger) (*Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		logger.Info("Scheduled job triggered", zap.String("schedule", spec))
		fn(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return &Cron{cron: c, logger: logger}, nil
}

func (c *Cron) Start() {
	c.cron.Start()
}

// Stop prevents new runs and waits for a running one to return.
func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
}
