// Package worker implements C8: one logical unit of processing per queue
// message — extract, stream, decode, parse, transform, filter, submit —
// with the failure-to-ack/nack mapping spec.md §4.8 requires.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/wifi-pipeline/transformer/internal/blobstore"
	"github.com/wifi-pipeline/transformer/internal/codec"
	"github.com/wifi-pipeline/transformer/internal/events"
	"github.com/wifi-pipeline/transformer/internal/filter"
	"github.com/wifi-pipeline/transformer/internal/ingestevent"
	"github.com/wifi-pipeline/transformer/internal/model"
	"github.com/wifi-pipeline/transformer/internal/parser"
	"github.com/wifi-pipeline/transformer/internal/tracing"
	"github.com/wifi-pipeline/transformer/internal/transform"
)

// EventLoggerFactory mints a scoped *events.EventLogger for one Worker run.
// Defaults to a noop factory so EventLogger wiring is opt-in for the
// composition root.
type EventLoggerFactory func(processingBatchID, messageID string) *events.EventLogger

// Outcome tells the Consumer Loop what to do with the queue message handle
// once a Worker run completes.
type Outcome int

const (
	// OutcomeAck is terminal: ack+drop (success, or a non-retryable,
	// structurally-bad message).
	OutcomeAck Outcome = iota
	// OutcomeNack means leave the message for redelivery.
	OutcomeNack
)

func (o Outcome) String() string {
	if o == OutcomeAck {
		return "ack"
	}
	return "nack"
}

// BatchSubmitter is the Batcher surface a Worker needs.
type BatchSubmitter interface {
	Submit(ctx context.Context, streamName string, m model.Measurement) error
}

// IDGenerator mints one processing_batch_id per Worker run.
type IDGenerator func() string

// Worker wires together C1-C7 for one message. All collaborators are
// injected so tests substitute fakes for the object store and batcher and
// never touch the network.
type Worker struct {
	store        blobstore.ObjectStore
	decoder      *codec.Decoder
	parser       *parser.Parser
	transformer  *transform.Transformer
	filter       *filter.Filter
	batcher      BatchSubmitter
	logger       *slog.Logger
	metrics      Metrics
	idGen        IDGenerator
	maxLineBytes int
	eventsFor    EventLoggerFactory
	tracer       *tracing.Tracer
}

type Config struct {
	Store        blobstore.ObjectStore
	Decoder      *codec.Decoder
	Parser       *parser.Parser
	Transformer  *transform.Transformer
	Filter       *filter.Filter
	Batcher      BatchSubmitter
	Logger       *slog.Logger
	Metrics      Metrics
	IDGen        IDGenerator
	MaxLineBytes int
	EventsFor    EventLoggerFactory
	Tracer       *tracing.Tracer
}

func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	eventsFor := cfg.EventsFor
	if eventsFor == nil {
		eventsFor = func(string, string) *events.EventLogger { return events.NoopEventLogger() }
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracing.NoopTracer()
	}
	return &Worker{
		store:        cfg.Store,
		decoder:      cfg.Decoder,
		parser:       cfg.Parser,
		transformer:  cfg.Transformer,
		filter:       cfg.Filter,
		batcher:      cfg.Batcher,
		logger:       logger,
		metrics:      metrics,
		idGen:        cfg.IDGen,
		maxLineBytes: cfg.MaxLineBytes,
		eventsFor:    eventsFor,
		tracer:       tracer,
	}
}

// ProcessMessage runs one message end to end and reports the Outcome the
// Consumer Loop should act on (ack or nack its handle).
func (w *Worker) ProcessMessage(ctx context.Context, body string) Outcome {
	start := time.Now()
	evt, err := ingestevent.Extract(body)
	if err != nil {
		w.metrics.IncMalformedEvent()
		w.logger.Error("malformed event, dropping", "stage", "extract", "error_kind", "malformed_event", "error", err)
		return OutcomeAck
	}

	batchID := w.idGen()
	logger := w.logger.With("processing_batch_id", batchID, "object_key", evt.ObjectKey, "message_id", evt.RequestID)
	evtLog := w.eventsFor(batchID, evt.RequestID)

	ctx, span := w.tracer.StartObjectSpan(ctx, tracing.ObjectSpanOptions{
		ProcessingBatchID: batchID,
		MessageID:         evt.RequestID,
		Bucket:            evt.Bucket,
		ObjectKey:         evt.ObjectKey,
	})
	defer span.End()

	stream, err := blobstore.Open(ctx, w.store, evt.Bucket, evt.ObjectKey, w.maxLineBytes)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrObjectNotFound):
			w.metrics.IncObjectNotFound()
			logger.Error("object not found, dropping", "stage", "open", "error_kind", "object_not_found", "error", err)
			evtLog.LogMessageOutcome(evt.ObjectKey, OutcomeAck.String())
			tracing.RecordError(span, err, "object_not_found", false)
			return OutcomeAck
		case errors.Is(err, blobstore.ErrTransientStorage):
			w.metrics.IncTransientStorageError()
			logger.Warn("transient storage error, will retry", "stage", "open", "error_kind", "transient_storage", "error", err)
			evtLog.LogMessageOutcome(evt.ObjectKey, OutcomeNack.String())
			tracing.RecordError(span, err, "transient_storage", true)
			return OutcomeNack
		default:
			logger.Error("unexpected object open error, will retry", "stage", "open", "error_kind", "unknown", "error", err)
			evtLog.LogMessageOutcome(evt.ObjectKey, OutcomeNack.String())
			tracing.RecordError(span, err, "unknown", true)
			return OutcomeNack
		}
	}
	defer stream.Close()

	anyFailure := false
	emitted := 0
	failures := 0
	for {
		line, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			anyFailure = true
			failures++
			logger.Warn("line read failed mid-object, will retry", "stage", "stream", "error_kind", "transient_storage", "error", err)
			tracing.RecordError(span, err, "transient_storage", true)
			break
		}

		w.processLine(ctx, line, evt, batchID, logger, &anyFailure, &emitted, &failures)
	}

	outcome := OutcomeAck
	if anyFailure {
		outcome = OutcomeNack
	}
	evtLog.LogObjectProcessed(evt.ObjectKey, emitted, failures, time.Since(start).Milliseconds())
	evtLog.LogMessageOutcome(evt.ObjectKey, outcome.String())
	return outcome
}

func (w *Worker) processLine(ctx context.Context, line string, evt model.UploadEvent, batchID string, logger *slog.Logger, anyFailure *bool, emitted, failures *int) {
	doc, ok := w.decoder.Decode(ctx, line)
	if !ok {
		w.metrics.IncDecodeFailure()
		*failures++
		return
	}

	payload, ok := w.parser.Parse(ctx, doc)
	if !ok {
		w.metrics.IncParseFailure()
		*failures++
		return
	}

	measurements := w.transformer.Transform(payload, evt.EventID, batchID)
	for i := range measurements {
		m := &measurements[i]
		res := w.filter.Apply(m)
		if !res.Keep {
			w.metrics.IncFilterDropped(res.Reason)
			continue
		}

		if err := w.batcher.Submit(ctx, evt.StreamName, *m); err != nil {
			*anyFailure = true
			*failures++
			logger.Error("submit to batcher failed, will retry", "stage", "submit", "error_kind", "publish", "error", err)
			continue
		}
		w.metrics.IncMeasurementsEmitted(1)
		*emitted++
	}
}
