// Package config defines the transformer's immutable runtime configuration.
// Loading it from environment, flags, or a file is the composition root's
// job (out of scope for the core, per spec.md §1/§6) — this package only
// defines the shape and the defaults every other package is allowed to
// assume when a value is unset.
package config

import "time"

// Config is the single immutable configuration struct loaded at startup.
// See spec.md §6 for the authoritative option table.
type Config struct {
	Queue    QueueConfig
	Filter   FilterConfig
	Delivery DeliveryConfig
	Shutdown ShutdownConfig

	MaxConcurrentMessages int
	ObjectMaxLineBytes    int
	MaxDecodedBytes       int
}

// QueueConfig governs the MessageSource long-poll/receive behavior.
type QueueConfig struct {
	QueueURL               string
	MaxMessagesPerReceive  int
	WaitSeconds            int
	VisibilityTimeoutS     int
}

// FilterConfig governs C4's sanity checks and hotspot policy.
type FilterConfig struct {
	AccuracyThresholdM  float64
	MobileHotspot       MobileHotspotConfig
}

type HotspotAction string

const (
	HotspotActionFlag     HotspotAction = "FLAG"
	HotspotActionExclude  HotspotAction = "EXCLUDE"
	HotspotActionLogOnly  HotspotAction = "LOG_ONLY"
)

type MobileHotspotConfig struct {
	Enabled bool
	Action  HotspotAction
}

// DeliveryConfig governs C7's batch limits and retry policy.
type DeliveryConfig struct {
	StreamName          string
	MaxRecordsPerBatch  int
	MaxBatchBytes       int
	MaxRecordBytes      int
	BatchTimeoutMs      int
	MaxRetries          int
	RetryBackoffMs      int
	PublishTimeoutMs    int
	PublisherConcurrency int
}

// ShutdownConfig governs C10's drain deadlines.
type ShutdownConfig struct {
	ProcessingDrainS time.Duration
	PublishDrainS    time.Duration
	MaxTotalS        time.Duration
}

// Default returns a Config populated with every default spec.md names. The
// composition root overlays operator-supplied overrides onto this base.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			MaxMessagesPerReceive: DefaultMaxMessagesPerReceive,
			WaitSeconds:           DefaultWaitSeconds,
			VisibilityTimeoutS:    DefaultVisibilityTimeoutS,
		},
		Filter: FilterConfig{
			AccuracyThresholdM: DefaultAccuracyThresholdM,
			MobileHotspot: MobileHotspotConfig{
				Enabled: false,
				Action:  HotspotActionLogOnly,
			},
		},
		Delivery: DeliveryConfig{
			MaxRecordsPerBatch:   DefaultMaxRecordsPerBatch,
			MaxBatchBytes:        DefaultMaxBatchBytes,
			MaxRecordBytes:       DefaultMaxRecordBytes,
			BatchTimeoutMs:       DefaultBatchTimeoutMs,
			MaxRetries:           DefaultMaxRetries,
			RetryBackoffMs:       DefaultRetryBackoffMs,
			PublishTimeoutMs:     DefaultPublishTimeoutMs,
			PublisherConcurrency: DefaultPublisherConcurrency,
		},
		Shutdown: ShutdownConfig{
			ProcessingDrainS: DefaultProcessingDrainS,
			PublishDrainS:    DefaultPublishDrainS,
			MaxTotalS:        DefaultMaxShutdownS,
		},
		MaxConcurrentMessages: DefaultMaxConcurrentMessages,
		ObjectMaxLineBytes:    DefaultObjectMaxLineBytes,
		MaxDecodedBytes:       DefaultMaxDecodedBytes,
	}
}
