package events

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// EventLogger provides structured logging for significant pipeline events:
// object-level outcomes, backpressure, retries, and shutdown phases. Per-line
// decode/parse failures are logged directly via *slog.Logger by the codec and
// parser (filter drops are only counted) — EventLogger is for events the
// composition root or an operator dashboard cares about at a coarser grain.
type EventLogger struct {
	logger            *slog.Logger
	processingBatchID string
	messageID         string
}

// NewEventLogger creates an EventLogger with JSON output to stdout, scoped
// to one Worker run via its processing_batch_id and source message_id.
func NewEventLogger(processingBatchID, messageID string) *EventLogger {
	return newEventLogger(os.Stdout, processingBatchID, messageID)
}

// NewEventLoggerWithWriter creates an EventLogger with JSON output to a
// custom writer. Useful for testing or redirecting output.
func NewEventLoggerWithWriter(processingBatchID, messageID string, w io.Writer) *EventLogger {
	return newEventLogger(w, processingBatchID, messageID)
}

func newEventLogger(w io.Writer, processingBatchID, messageID string) *EventLogger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler).With(
		"processing_batch_id", processingBatchID,
		"message_id", messageID,
	)
	return &EventLogger{
		logger:            logger,
		processingBatchID: processingBatchID,
		messageID:         messageID,
	}
}

// LogObjectProcessed logs one Worker run's terminal outcome.
// event: "object_processed"
// Attributes: object_key, measurements_emitted, failures, duration_ms
func (el *EventLogger) LogObjectProcessed(objectKey string, measurementsEmitted, failures int, durationMs int64) {
	el.logger.Info("object_processed",
		"object_key", objectKey,
		"measurements_emitted", measurementsEmitted,
		"failures", failures,
		"duration_ms", durationMs,
	)
}

// LogBackpressurePause logs a consumer-loop backpressure pause.
// event: "backpressure_pause"
// Attributes: pending_bytes_frac, cooldown_ms
func (el *EventLogger) LogBackpressurePause(pendingBytesFrac float64, cooldownMs int64) {
	el.logger.Warn("backpressure_pause",
		"pending_bytes_frac", pendingBytesFrac,
		"cooldown_ms", cooldownMs,
	)
}

// LogPublishRetry logs one retry attempt within a Batcher flush.
// event: "publish_retry"
// Attributes: stream_name, attempt, reason, error_kind
func (el *EventLogger) LogPublishRetry(streamName string, attempt int, reason, errorKind string) {
	el.logger.Warn("publish_retry",
		"stream_name", streamName,
		"attempt", attempt,
		"reason", reason,
		"error_kind", errorKind,
	)
}

// LogShutdownPhase logs one phase of the lifecycle coordinator's shutdown
// sequence.
// event: "shutdown_phase"
// Attributes: phase, elapsed_ms, abandoned
func (el *EventLogger) LogShutdownPhase(phase string, elapsedMs int64, abandoned bool) {
	if abandoned {
		el.logger.Warn("shutdown_phase", "phase", phase, "elapsed_ms", elapsedMs, "abandoned", abandoned)
		return
	}
	el.logger.Info("shutdown_phase", "phase", phase, "elapsed_ms", elapsedMs, "abandoned", abandoned)
}

// LogMessageOutcome logs the ack/nack outcome a Worker run reports to the
// Consumer Loop for one queue message.
// event: "message_outcome"
// Attributes: object_key, outcome
func (el *EventLogger) LogMessageOutcome(objectKey, outcome string) {
	el.logger.Info("message_outcome",
		"object_key", objectKey,
		"outcome", outcome,
	)
}

// Global logger management, for call sites too deep to thread an
// EventLogger through explicitly.
var (
	globalLogger *EventLogger
	globalMu     sync.RWMutex
)

// SetGlobalEventLogger sets the global event logger instance.
func SetGlobalEventLogger(l *EventLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalEventLogger returns the global event logger instance.
// If no logger is set, returns a no-op logger.
func GetGlobalEventLogger() *EventLogger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger
	}
	return NoopEventLogger()
}

// NoopEventLogger returns an event logger that discards all events. Useful
// for testing or when event logging is disabled.
func NoopEventLogger() *EventLogger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &EventLogger{logger: slog.New(handler)}
}
