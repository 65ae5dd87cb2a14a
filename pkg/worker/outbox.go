package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/hrm-api/internal/repository"
	"github.com/jwalitptl/hrm-api/pkg/logger"
	"github.com/jwalitptl/hrm-api/pkg/messaging"
	"github.com/jwalitptl/hrm-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	PruneAfter   time.Duration
}

// OutboxProcessor drains committed delivery events to the broker. Events are
// published on a topic named after their kind, in creation order within each
// batch; FOR UPDATE SKIP LOCKED in the repository keeps multiple processor
// instances from double-publishing.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	l *logger.Logger,
	m *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  l,
		metrics: m,
	}
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	var pruneTicker *time.Ticker
	var pruneC <-chan time.Time
	if p.config.PruneAfter > 0 {
		pruneTicker = time.NewTicker(time.Hour)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	p.logger.Info("outbox processor started",
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox processor stopped")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error(err, "outbox batch failed")
			}
		case <-pruneC:
			p.prune(ctx)
		}
	}
}

func (p *OutboxProcessor) processBatch(ctx context.Context) error {
	start := time.Now()
	events, err := p.repo.GetPendingWithLock(ctx, p.config.BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		if err := p.broker.Publish(ctx, ev.EventType, ev.Payload); err != nil {
			p.logger.Error(err, "failed to publish outbox event",
				"event_id", ev.ID.String(),
				"event_type", ev.EventType,
			)
			if p.metrics != nil {
				p.metrics.OutboxEventsFailed.Inc()
			}
			if err := p.repo.MarkFailed(ctx, ev.ID, err.Error()); err != nil {
				p.logger.Error(err, "failed to mark outbox event failed", "event_id", ev.ID.String())
			}
			continue
		}
		if err := p.repo.MarkProcessed(ctx, ev.ID); err != nil {
			p.logger.Error(err, "failed to mark outbox event processed", "event_id", ev.ID.String())
			continue
		}
		if p.metrics != nil {
			p.metrics.OutboxEventsProcessed.Inc()
		}
	}

	if p.metrics != nil {
		p.metrics.OutboxProcessingLatency.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (p *OutboxProcessor) prune(ctx context.Context) {
	before := time.Now().Add(-p.config.PruneAfter)
	n, err := p.repo.DeleteProcessedBefore(ctx, before)
	if err != nil {
		p.logger.Error(err, "failed to prune outbox")
		return
	}
	if n > 0 {
		p.logger.Info("pruned processed outbox events", "count", n)
	}
}
