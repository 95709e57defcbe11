// Package publisher implements C7: accumulating Measurements per
// delivery-stream name and publishing them in batches that respect the
// downstream's hard limits, with bounded retry and requeue-at-head
// semantics on partial failure.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wifi-pipeline/transformer/internal/events"
	"github.com/wifi-pipeline/transformer/internal/model"
	"github.com/wifi-pipeline/transformer/internal/tracing"
)

// ErrRecordTooLarge marks a record dropped because it alone exceeds
// max_record_bytes. It is never silently truncated.
var ErrRecordTooLarge = errors.New("publisher: record exceeds max_record_bytes")

// State is the Batcher's externally observable lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateAccumulating
	StatePublishing
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAccumulating:
		return "Accumulating"
	case StatePublishing:
		return "Publishing"
	case StateDraining:
		return "Draining"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// PerRecordResult is one record's outcome from a PutBatch call.
type PerRecordResult struct {
	OK        bool
	ErrorCode string
	Retryable bool
}

// DeliveryStream is the downstream batched-publish collaborator.
// Implementations enforce (or reflect) the hard limits: 500 records/call,
// 4 MiB/call, 1 MiB/record.
type DeliveryStream interface {
	PutBatch(ctx context.Context, streamName string, records [][]byte) ([]PerRecordResult, error)
}

// Config mirrors internal/config.DeliveryConfig's limits, decoupled from
// the config package so this file can be tested with ad-hoc values.
type Config struct {
	MaxRecordsPerBatch int
	MaxBatchBytes      int
	MaxRecordBytes     int
	BatchTimeout       time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	PublishTimeout     time.Duration
}

type pendingQueue struct {
	records  []*model.SizedRecord
	bytes    int
	oldestAt time.Time
}

type submission struct {
	streamName string
	record     *model.SizedRecord
	accepted   chan error
}

type drainRequest struct {
	done chan struct{}
}

// Batcher is the single owner of all pending-buffer mutable state; every
// mutation happens inside run(), reached only via channels, following the
// channel+ticker single-owner-goroutine pattern.
type Batcher struct {
	cfg     Config
	stream  DeliveryStream
	metrics Metrics
	logger  *slog.Logger

	submit chan submission
	drain  chan drainRequest
	closed chan struct{}

	state   chan State // buffered size 1, holds current state for State()
	wg      sync.WaitGroup
	started bool

	pendingBytes atomic.Int64
	events       *events.EventLogger
	tracer       *tracing.Tracer
}

// SetEventLogger attaches an EventLogger for coarse-grained retry reporting.
// Optional; when unset, retry events are discarded (logger still reports
// failed PutBatch calls and dropped records).
func (b *Batcher) SetEventLogger(e *events.EventLogger) {
	b.events = e
}

// SetTracer attaches a Tracer for per-flush publish spans. Optional;
// defaults to a noop tracer.
func (b *Batcher) SetTracer(t *tracing.Tracer) {
	b.tracer = t
}

func (b *Batcher) eventLogger() *events.EventLogger {
	if b.events == nil {
		return events.NoopEventLogger()
	}
	return b.events
}

func (b *Batcher) tracerOrNoop() *tracing.Tracer {
	if b.tracer == nil {
		return tracing.NoopTracer()
	}
	return b.tracer
}

func NewBatcher(cfg Config, stream DeliveryStream, metrics Metrics, logger *slog.Logger) *Batcher {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	st := make(chan State, 1)
	st <- StateIdle
	return &Batcher{
		cfg:     cfg,
		stream:  stream,
		metrics: metrics,
		logger:  logger,
		submit:  make(chan submission),
		drain:   make(chan drainRequest),
		closed:  make(chan struct{}),
		state:   st,
	}
}

// Start launches the owning goroutine. Safe to call once.
func (b *Batcher) Start() {
	if b.started {
		return
	}
	b.started = true
	b.wg.Add(1)
	go b.run()
}

// State returns the Batcher's current lifecycle stage.
func (b *Batcher) State() State {
	s := <-b.state
	b.state <- s
	return s
}

func (b *Batcher) setState(s State) {
	<-b.state
	b.state <- s
}

// PendingBytesFrac reports the fraction of max_batch_bytes currently
// occupied across every stream's pending buffer, for C9's backpressure
// check (spec.md §4.9: pause receives when this sustains above a
// high-water mark).
func (b *Batcher) PendingBytesFrac() float64 {
	maxBytes := b.cfg.MaxBatchBytes
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	return float64(b.pendingBytes.Load()) / float64(maxBytes)
}

// Submit serializes m exactly once, caching its size, and hands it to the
// owning goroutine for the named stream's pending buffer. A record larger
// than max_record_bytes is dropped immediately with ErrRecordTooLarge and a
// counter increment; it never reaches the buffer.
func (b *Batcher) Submit(ctx context.Context, streamName string, m model.Measurement) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("publisher: serialize measurement: %w", err)
	}
	if len(body) > b.cfg.MaxRecordBytes {
		b.metrics.IncRecordTooLarge(1)
		b.logger.Warn("record too large, dropped", "stream", streamName, "bytes", len(body))
		return ErrRecordTooLarge
	}

	rec := &model.SizedRecord{Measurement: m, Bytes: body}
	ack := make(chan error, 1)
	select {
	case b.submit <- submission{streamName: streamName, record: rec, accepted: ack}:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return fmt.Errorf("publisher: closed")
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain requests an immediate flush of every pending stream and blocks
// until it completes or ctx expires. Called by the lifecycle coordinator
// during shutdown's publish-drain phase.
func (b *Batcher) Drain(ctx context.Context) error {
	req := drainRequest{done: make(chan struct{})}
	select {
	case b.drain <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return fmt.Errorf("publisher: closed")
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the owning goroutine without flushing; callers should Drain
// first. Safe to call once.
func (b *Batcher) Close() {
	select {
	case <-b.closed:
		return
	default:
		close(b.closed)
	}
	b.wg.Wait()
	b.setState(StateClosed)
}

func (b *Batcher) run() {
	defer b.wg.Done()

	pending := make(map[string]*pendingQueue)
	ticker := time.NewTicker(b.batchTimeout())
	defer ticker.Stop()

	for {
		select {
		case s := <-b.submit:
			b.setState(StateAccumulating)
			q := pending[s.streamName]
			if q == nil {
				q = &pendingQueue{}
				pending[s.streamName] = q
			}
			if b.wouldExceed(q, s.record) {
				b.flushStream(context.Background(), s.streamName, q)
			}
			q.records = append(q.records, s.record)
			q.bytes += s.record.Size()
			b.pendingBytes.Add(int64(s.record.Size()))
			if len(q.records) == 1 {
				q.oldestAt = time.Now()
			}
			s.accepted <- nil

		case <-ticker.C:
			for name, q := range pending {
				if len(q.records) > 0 && time.Since(q.oldestAt) >= b.batchTimeout() {
					b.flushStream(context.Background(), name, q)
				}
			}

		case req := <-b.drain:
			b.setState(StateDraining)
			for name, q := range pending {
				if len(q.records) > 0 {
					b.flushStream(context.Background(), name, q)
				}
			}
			close(req.done)
			b.setState(StateAccumulating)

		case <-b.closed:
			return
		}
	}
}

func (b *Batcher) batchTimeout() time.Duration {
	if b.cfg.BatchTimeout <= 0 {
		return 2 * time.Second
	}
	return b.cfg.BatchTimeout
}

func (b *Batcher) wouldExceed(q *pendingQueue, next *model.SizedRecord) bool {
	maxRecords := b.cfg.MaxRecordsPerBatch
	if maxRecords <= 0 {
		maxRecords = 500
	}
	maxBytes := b.cfg.MaxBatchBytes
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	return len(q.records)+1 > maxRecords || q.bytes+next.Size() > maxBytes
}

// flushStream publishes q's records, handling retry with requeue-at-head
// semantics: only records the downstream reported retryable are retried;
// their relative order is preserved across attempts. Exhausted records are
// dropped with a counter and a structured error log — the pipeline never
// stalls on one poisoned stream.
func (b *Batcher) flushStream(ctx context.Context, name string, q *pendingQueue) {
	b.setState(StatePublishing)
	defer b.setState(StateAccumulating)

	batch := q.records
	q.records = nil
	b.pendingBytes.Add(-int64(q.bytes))
	q.bytes = 0

	ctx, span := b.tracerOrNoop().StartPublishSpan(ctx, tracing.PublishSpanOptions{
		StreamName: name,
		BatchSize:  len(batch),
	})
	defer span.End()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.retryBackoff()
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	bo.Reset()

	maxRetries := b.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	toSend := batch
	for attempt := 0; attempt <= maxRetries && len(toSend) > 0; attempt++ {
		if attempt > 0 {
			b.eventLogger().LogPublishRetry(name, attempt, "retryable_result", "publish")
			tracing.RecordRetry(span, attempt, "retryable_result")
			time.Sleep(bo.NextBackOff())
		}

		publishCtx, cancel := context.WithTimeout(ctx, b.publishTimeout())
		results, err := b.stream.PutBatch(publishCtx, name, serialize(toSend))
		cancel()

		if err != nil {
			b.logger.Error("publish batch failed", "stream", name, "attempt", attempt, "error", err)
			tracing.RecordError(span, err, "publish", true)
			continue
		}

		var retry []*model.SizedRecord
		for i, r := range results {
			if i >= len(toSend) {
				break
			}
			switch {
			case r.OK:
				b.metrics.IncPublished(1)
			case r.Retryable:
				retry = append(retry, toSend[i])
			default:
				b.metrics.IncPublishFailed(1)
				b.logger.Error("record rejected, non-retryable", "stream", name, "error_code", r.ErrorCode)
			}
		}
		toSend = retry
	}

	if len(toSend) > 0 {
		b.metrics.IncPublishGaveUp(len(toSend))
		b.logger.Error("gave up after max retries, records dropped", "stream", name, "dropped", len(toSend))
	}
}

func (b *Batcher) retryBackoff() time.Duration {
	if b.cfg.RetryBackoff <= 0 {
		return 200 * time.Millisecond
	}
	return b.cfg.RetryBackoff
}

func (b *Batcher) publishTimeout() time.Duration {
	if b.cfg.PublishTimeout <= 0 {
		return 5 * time.Second
	}
	return b.cfg.PublishTimeout
}

func serialize(records []*model.SizedRecord) [][]byte {
	out := make([][]byte, len(records))
	for i, r := range records {
		out[i] = r.Bytes
	}
	return out
}
