// Package consumer implements C9: long-polling the queue and dispatching
// received messages to a bounded pool of Workers, refreshing visibility for
// long-running messages, and pausing receives under Batcher backpressure.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wifi-pipeline/transformer/internal/config"
	"github.com/wifi-pipeline/transformer/internal/queue"
	"github.com/wifi-pipeline/transformer/internal/worker"
)

// WorkerPool is the Worker surface the Consumer Loop dispatches onto. A
// single *worker.Worker satisfies this directly; tests substitute a fake.
type WorkerPool interface {
	ProcessMessage(ctx context.Context, body string) worker.Outcome
}

// BackpressureSource reports the Batcher's current buffer occupancy as a
// fraction of its configured byte ceiling.
type BackpressureSource interface {
	PendingBytesFrac() float64
}

// Config mirrors internal/config.QueueConfig plus the concurrency and
// backpressure knobs the loop needs, decoupled so this package stays
// testable with ad-hoc values.
type Config struct {
	MaxMessagesPerReceive int
	WaitSeconds           int
	VisibilityTimeoutS    int
	MaxConcurrentMessages int

	BackpressureHighWaterFrac float64
	BackpressureCooldown      time.Duration
}

func configFromQueue(q config.QueueConfig, maxConcurrent int) Config {
	return Config{
		MaxMessagesPerReceive:     q.MaxMessagesPerReceive,
		WaitSeconds:               q.WaitSeconds,
		VisibilityTimeoutS:        q.VisibilityTimeoutS,
		MaxConcurrentMessages:     maxConcurrent,
		BackpressureHighWaterFrac: config.BackpressureHighWaterFrac,
		BackpressureCooldown:      config.BackpressureCooldown,
	}
}

// Loop is the single logical task that owns queue receives. Workers run on
// a bounded pool sized by MaxConcurrentMessages; the pool itself is a
// buffered channel of tokens, not a goroutine farm spun up per message.
type Loop struct {
	source  queue.MessageSource
	workers WorkerPool
	backlog BackpressureSource
	cfg     Config
	logger  *slog.Logger
	metrics Metrics

	sem      chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Int64
	stopped  atomic.Bool
}

// New builds a Loop from the spec's queue config and the composition root's
// wired collaborators. maxConcurrentMessages comes from Config.MaxConcurrentMessages.
func New(q config.QueueConfig, maxConcurrentMessages int, source queue.MessageSource, workers WorkerPool, backlog BackpressureSource, metrics Metrics, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	if maxConcurrentMessages <= 0 {
		maxConcurrentMessages = config.DefaultMaxConcurrentMessages
	}
	return &Loop{
		source:  source,
		workers: workers,
		backlog: backlog,
		cfg:     configFromQueue(q, maxConcurrentMessages),
		logger:  logger,
		metrics: metrics,
		sem:     make(chan struct{}, maxConcurrentMessages),
	}
}

// Run blocks, receiving and dispatching messages until ctx is cancelled or
// Stop is called. It returns once receiving has ceased; in-flight dispatches
// may still be running — callers wait on Drain for those to finish.
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || l.stopped.Load() {
			return
		}

		if l.backlog != nil && l.backlog.PendingBytesFrac() >= l.cfg.highWaterFrac() {
			l.metrics.IncBackpressurePause()
			l.logger.Warn("backpressure: pausing receives", "pending_bytes_frac", l.backlog.PendingBytesFrac())
			select {
			case <-time.After(l.cfg.cooldown()):
			case <-ctx.Done():
				return
			}
			continue
		}

		free := l.availableSlots()
		if free == 0 {
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		want := l.cfg.MaxMessagesPerReceive
		if want <= 0 || want > free {
			want = free
		}

		msgs, err := l.source.Receive(ctx, want, l.cfg.WaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.metrics.IncReceiveError()
			l.logger.Warn("queue receive failed", "error", err)
			continue
		}

		for _, m := range msgs {
			select {
			case l.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			l.wg.Add(1)
			l.inFlight.Add(1)
			go l.dispatch(ctx, m)
		}
	}
}

// Stop tells Run to cease receiving new messages. It does not wait for
// in-flight dispatches; use Drain for that.
func (l *Loop) Stop() {
	l.stopped.Store(true)
}

// Drain blocks until every dispatched Worker finishes or ctx expires,
// whichever comes first. The Lifecycle Coordinator calls this bounded by
// processing_drain_timeout.
func (l *Loop) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports the current number of dispatched, not-yet-finished
// messages, for shutdown-abandonment logging.
func (l *Loop) InFlight() int64 {
	return l.inFlight.Load()
}

func (l *Loop) availableSlots() int {
	return cap(l.sem) - len(l.sem)
}

func (l *Loop) dispatch(ctx context.Context, m queue.Message) {
	defer func() {
		<-l.sem
		l.inFlight.Add(-1)
		l.wg.Done()
	}()

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	l.startVisibilityRefresh(refreshCtx, m.Handle)

	outcome := l.workers.ProcessMessage(ctx, m.Body)

	switch outcome {
	case worker.OutcomeAck:
		if err := l.source.Ack(ctx, m.Handle); err != nil {
			l.logger.Error("ack failed", "error", err)
		} else {
			l.metrics.IncAcked()
		}
	default:
		if err := l.source.Nack(ctx, m.Handle); err != nil {
			l.logger.Error("nack failed", "error", err)
		} else {
			l.metrics.IncNacked()
		}
	}
}

// startVisibilityRefresh extends the message's visibility on a schedule
// for as long as processing runs past half the configured timeout,
// stopping as soon as refreshCtx is cancelled (dispatch's defer).
func (l *Loop) startVisibilityRefresh(refreshCtx context.Context, handle string) {
	interval := queue.VisibilityRefreshInterval(l.cfg.VisibilityTimeoutS)
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := l.source.ExtendVisibility(refreshCtx, handle, l.cfg.VisibilityTimeoutS); err != nil {
					l.logger.Warn("visibility extend failed", "error", err)
				}
			case <-refreshCtx.Done():
				return
			}
		}
	}()
}

func (c Config) highWaterFrac() float64 {
	if c.BackpressureHighWaterFrac <= 0 {
		return config.BackpressureHighWaterFrac
	}
	return c.BackpressureHighWaterFrac
}

func (c Config) cooldown() time.Duration {
	if c.BackpressureCooldown <= 0 {
		return config.BackpressureCooldown
	}
	return c.BackpressureCooldown
}
