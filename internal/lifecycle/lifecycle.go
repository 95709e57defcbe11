// Package lifecycle implements C10: the shutdown sequence that stops the
// Consumer Loop from receiving, drains in-flight Workers, flushes the
// Batcher, and bounds the whole thing by a total shutdown deadline.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/wifi-pipeline/transformer/internal/config"
	"github.com/wifi-pipeline/transformer/internal/events"
)

// ConsumerLoop is the C9 surface the coordinator needs to stop and drain.
type ConsumerLoop interface {
	Stop()
	Drain(ctx context.Context) error
	InFlight() int64
}

// Publisher is the C7 surface the coordinator needs to flush.
type Publisher interface {
	Drain(ctx context.Context) error
}

// Metrics is the narrow counter surface shutdown abandonment reports on.
type Metrics interface {
	IncProcessingDrainAbandoned(inFlight int64)
	IncPublishDrainAbandoned()
}

// NoOpMetrics discards every increment.
type NoOpMetrics struct{}

func (NoOpMetrics) IncProcessingDrainAbandoned(int64) {}
func (NoOpMetrics) IncPublishDrainAbandoned()         {}

// Coordinator runs the ordered shutdown sequence spec.md §4.10 describes.
// It is stateless across runs; construct one per process and call Shutdown
// once, after the consumer loop's Run returns (cmd/ cancels it on a signal).
type Coordinator struct {
	consumer  ConsumerLoop
	publisher Publisher
	cfg       config.ShutdownConfig
	logger    *slog.Logger
	metrics   Metrics
	events    *events.EventLogger
}

func New(consumer ConsumerLoop, publisher Publisher, cfg config.ShutdownConfig, metrics Metrics, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Coordinator{consumer: consumer, publisher: publisher, cfg: cfg, logger: logger, metrics: metrics, events: events.NoopEventLogger()}
}

// SetEventLogger attaches an EventLogger for structured shutdown-phase
// reporting. Optional; defaults to a noop logger.
func (c *Coordinator) SetEventLogger(e *events.EventLogger) {
	c.events = e
}

// Shutdown runs the four-phase sequence bounded overall by max_shutdown_s:
// (1) stop receiving, (2) drain in-flight Workers up to processing_drain_s,
// (3) flush the Batcher up to publish_drain_s, (4) return. Deadlines
// exceeded are logged at WARN and counted, never silently swallowed.
func (c *Coordinator) Shutdown(ctx context.Context) {
	total := c.maxTotal()
	overallCtx, cancel := context.WithTimeout(ctx, total)
	defer cancel()

	start := time.Now()
	c.logger.Info("shutdown: stopping consumer loop receives")
	c.consumer.Stop()

	processingCtx, processingCancel := context.WithTimeout(overallCtx, c.processingDrain())
	defer processingCancel()
	if err := c.consumer.Drain(processingCtx); err != nil {
		inFlight := c.consumer.InFlight()
		c.metrics.IncProcessingDrainAbandoned(inFlight)
		c.logger.Warn("shutdown: processing drain deadline exceeded, abandoning in-flight work",
			"in_flight", inFlight, "elapsed", time.Since(start))
		c.events.LogShutdownPhase("processing_drain", time.Since(start).Milliseconds(), true)
	} else {
		c.logger.Info("shutdown: all in-flight messages finished")
		c.events.LogShutdownPhase("processing_drain", time.Since(start).Milliseconds(), false)
	}

	publishCtx, publishCancel := context.WithTimeout(overallCtx, c.publishDrain())
	defer publishCancel()
	if err := c.publisher.Drain(publishCtx); err != nil {
		c.metrics.IncPublishDrainAbandoned()
		c.logger.Warn("shutdown: publish drain deadline exceeded, pending records may be lost",
			"elapsed", time.Since(start))
		c.events.LogShutdownPhase("publish_drain", time.Since(start).Milliseconds(), true)
	} else {
		c.logger.Info("shutdown: batcher flushed")
		c.events.LogShutdownPhase("publish_drain", time.Since(start).Milliseconds(), false)
	}

	c.logger.Info("shutdown: complete", "total_elapsed", time.Since(start))
}

func (c *Coordinator) maxTotal() time.Duration {
	if c.cfg.MaxTotalS <= 0 {
		return config.DefaultMaxShutdownS
	}
	return c.cfg.MaxTotalS
}

func (c *Coordinator) processingDrain() time.Duration {
	if c.cfg.ProcessingDrainS <= 0 {
		return config.DefaultProcessingDrainS
	}
	return c.cfg.ProcessingDrainS
}

func (c *Coordinator) publishDrain() time.Duration {
	if c.cfg.PublishDrainS <= 0 {
		return config.DefaultPublishDrainS
	}
	return c.cfg.PublishDrainS
}
