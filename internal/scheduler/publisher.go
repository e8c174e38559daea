package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/pkg/config"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

// Publisher flips scheduled articles to published once their time comes
type Publisher struct {
	content   *blog.ContentService
	interval  time.Duration
	batchSize int
	published metric.Int64Counter
	logger    *zap.Logger
}

// NewPublisher creates a new scheduled article publisher
func NewPublisher(content *blog.ContentService, cfg *config.SchedulerConfig) *Publisher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = blog.MaxPageSize
	}

	logger := logging.GetLogger().With(zap.String("component", "scheduler"))
	published, err := telemetry.Meter().Int64Counter("sunublog.scheduler.published",
		metric.WithDescription("Scheduled articles published by the background publisher"))
	if err != nil {
		logger.Warn("Failed to create published counter", zap.Error(err))
	}

	return &Publisher{
		content:   content,
		interval:  interval,
		batchSize: batchSize,
		published: published,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled. Failed passes are logged and retried on
// the next tick.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("Starting scheduled article publisher", zap.Duration("interval", p.interval))

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("Failed to publish scheduled articles", zap.Error(err))
		}
		if !p.wait(ctx) {
			p.logger.Info("Scheduled article publisher stopped")
			return ctx.Err()
		}
	}
}

// RunOnce publishes every due article, one batch at a time
func (p *Publisher) RunOnce(ctx context.Context) (int64, error) {
	var total int64
	for {
		published, err := p.content.PublishDue(ctx, p.batchSize)
		total += published
		if err != nil {
			return total, err
		}
		if published < int64(p.batchSize) {
			break
		}
	}

	if total > 0 {
		if p.published != nil {
			p.published.Add(ctx, total)
		}
		p.logger.Info("Published scheduled articles", zap.Int64("count", total))
	} else {
		p.logger.Debug("No scheduled articles due")
	}
	return total, nil
}

// wait blocks for one interval. It returns false once ctx is cancelled.
func (p *Publisher) wait(ctx context.Context) bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
