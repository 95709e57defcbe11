package config

import "time"

// Default configuration constants, one per option spec.md §6 names.
const (
	DefaultMaxMessagesPerReceive = 10
	DefaultWaitSeconds           = 20
	DefaultVisibilityTimeoutS    = 60
	DefaultMaxConcurrentMessages = 10

	DefaultObjectMaxLineBytes = 1 << 20 // 1 MiB
	DefaultMaxDecodedBytes    = 1 << 20 // 1 MiB

	DefaultAccuracyThresholdM = 150.0

	DefaultMaxRecordsPerBatch   = 500
	DefaultMaxBatchBytes        = 4 << 20 // 4 MiB
	DefaultMaxRecordBytes       = 1 << 20 // 1 MiB
	DefaultBatchTimeoutMs       = 2000
	DefaultMaxRetries           = 3
	DefaultRetryBackoffMs       = 200
	DefaultPublishTimeoutMs     = 5000
	DefaultPublisherConcurrency = 1

	DefaultProcessingDrainS = 10 * time.Second
	DefaultPublishDrainS    = 15 * time.Second
	DefaultMaxShutdownS     = 30 * time.Second

	// BackpressureHighWaterFrac is the fraction of MaxBatchBytes at which
	// the consumer loop pauses new receives (spec.md §4.9).
	BackpressureHighWaterFrac = 0.8

	// BackpressureCooldown is how long the consumer loop pauses receives
	// once backpressure triggers, before re-checking pending bytes.
	BackpressureCooldown = 250 * time.Millisecond

	// StreamReadIdleTimeout is the 30 s idle-read bound for object streams.
	// No package reads it: LineStream applies no idle timeout of its own.
	StreamReadIdleTimeout = 30 * time.Second

	// RetryJitterFraction is the ±jitter applied to exponential backoff
	// between publish retries (spec.md §4.7: "base × 2^attempt jittered
	// ±20%").
	RetryJitterFraction = 0.2

	// EarliestPlausibleMeasurementYear is the lower bound of C4's
	// timestamp-plausibility window (spec.md §4.4); the upper bound is
	// always "now + 1 day" and so cannot be a constant.
	EarliestPlausibleMeasurementYear = 2010
)
