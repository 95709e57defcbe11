// Command transformer is the composition root: it loads configuration from
// flags, wires C1-C10 together, and runs until SIGINT/SIGTERM triggers the
// lifecycle coordinator's bounded shutdown sequence.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wifi-pipeline/transformer/internal/blobstore"
	"github.com/wifi-pipeline/transformer/internal/codec"
	"github.com/wifi-pipeline/transformer/internal/config"
	"github.com/wifi-pipeline/transformer/internal/consumer"
	"github.com/wifi-pipeline/transformer/internal/events"
	"github.com/wifi-pipeline/transformer/internal/filter"
	"github.com/wifi-pipeline/transformer/internal/lifecycle"
	"github.com/wifi-pipeline/transformer/internal/metrics"
	"github.com/wifi-pipeline/transformer/internal/oui"
	"github.com/wifi-pipeline/transformer/internal/parser"
	"github.com/wifi-pipeline/transformer/internal/publisher"
	"github.com/wifi-pipeline/transformer/internal/queue"
	"github.com/wifi-pipeline/transformer/internal/tracing"
	"github.com/wifi-pipeline/transformer/internal/transform"
	"github.com/wifi-pipeline/transformer/internal/worker"
)

func main() {
	// Queue (C9 source).
	natsURL := flag.String("nats-url", "nats://127.0.0.1:4222", "NATS JetStream URL")
	natsUsername := flag.String("nats-username", "", "NATS username")
	natsPassword := flag.String("nats-password", "", "NATS password")
	natsCreds := flag.String("nats-creds-file", "", "Path to a NATS credentials file")
	natsStream := flag.String("nats-stream", "UPLOAD_EVENTS", "JetStream stream name")
	natsConsumer := flag.String("nats-consumer", "wifi-transformer", "JetStream durable pull consumer name")
	natsSubject := flag.String("nats-subject", "upload.events", "JetStream subject to pull from")

	// Object store (C5 source).
	s3Region := flag.String("s3-region", "us-east-1", "S3 region")
	s3Endpoint := flag.String("s3-endpoint", "", "S3-compatible endpoint override (minio/localstack)")
	s3AccessKey := flag.String("s3-access-key", "", "Static S3 access key (empty uses the default credential chain)")
	s3SecretKey := flag.String("s3-secret-key", "", "Static S3 secret key")
	s3PathStyle := flag.Bool("s3-path-style", false, "Use path-style S3 addressing")

	// Delivery stream (C7 sink).
	firehoseRegion := flag.String("firehose-region", "us-east-1", "Kinesis Data Firehose region")
	firehoseEndpoint := flag.String("firehose-endpoint", "", "Firehose-compatible endpoint override")
	firehoseAccessKey := flag.String("firehose-access-key", "", "Static Firehose access key")
	firehoseSecretKey := flag.String("firehose-secret-key", "", "Static Firehose secret key")

	// Queue/receive shape.
	maxMessagesPerReceive := flag.Int("max-messages-per-receive", config.DefaultMaxMessagesPerReceive, "Max messages per long-poll receive")
	waitSeconds := flag.Int("wait-seconds", config.DefaultWaitSeconds, "Long-poll wait seconds")
	visibilityTimeoutS := flag.Int("visibility-timeout-s", config.DefaultVisibilityTimeoutS, "Queue visibility timeout, seconds")
	maxConcurrentMessages := flag.Int("max-concurrent-messages", config.DefaultMaxConcurrentMessages, "Max in-flight messages processed concurrently")
	objectMaxLineBytes := flag.Int("object-max-line-bytes", config.DefaultObjectMaxLineBytes, "Max bytes per object line before it is treated as a transient storage error")
	maxDecodedBytes := flag.Int("max-decoded-bytes", config.DefaultMaxDecodedBytes, "Max bytes a decoded line may expand to")

	// Filter policy.
	accuracyThresholdM := flag.Float64("filter-accuracy-threshold-m", config.DefaultAccuracyThresholdM, "Max location_accuracy (meters) before a measurement is dropped")
	hotspotEnabled := flag.Bool("filter-mobile-hotspot-enabled", false, "Enable the mobile-hotspot OUI policy")
	hotspotAction := flag.String("filter-mobile-hotspot-action", string(config.HotspotActionLogOnly), "Mobile-hotspot policy action: FLAG, EXCLUDE, or LOG_ONLY")
	ouiListPath := flag.String("oui-list-file", "", "Path to a newline-separated list of mobile-hotspot OUI prefixes (AA:BB:CC)")

	// Delivery/batching.
	deliveryStreamName := flag.String("delivery-stream-name", "", "Delivery stream name, stored in the config only; records go to the stream derived from each object key (\"unknown\" when the key yields none)")
	maxRecordsPerBatch := flag.Int("delivery-max-records-per-batch", config.DefaultMaxRecordsPerBatch, "Max records per PutBatch call")
	maxBatchBytes := flag.Int("delivery-max-batch-bytes", config.DefaultMaxBatchBytes, "Max bytes per PutBatch call")
	maxRecordBytes := flag.Int("delivery-max-record-bytes", config.DefaultMaxRecordBytes, "Max bytes per record")
	batchTimeoutMs := flag.Int("delivery-batch-timeout-ms", config.DefaultBatchTimeoutMs, "Max time a partial batch waits before a forced flush")
	maxRetries := flag.Int("delivery-max-retries", config.DefaultMaxRetries, "Max publish retries before records are dropped")
	retryBackoffMs := flag.Int("delivery-retry-backoff-ms", config.DefaultRetryBackoffMs, "Initial publish retry backoff, milliseconds")
	publishTimeoutMs := flag.Int("delivery-publish-timeout-ms", config.DefaultPublishTimeoutMs, "Per-PutBatch-call timeout, milliseconds")

	// Shutdown.
	processingDrainS := flag.Duration("shutdown-processing-drain-s", config.DefaultProcessingDrainS, "Max time to wait for in-flight workers to finish on shutdown")
	publishDrainS := flag.Duration("shutdown-publish-drain-s", config.DefaultPublishDrainS, "Max time to wait for the batcher to flush on shutdown")
	maxTotalS := flag.Duration("shutdown-max-total-s", config.DefaultMaxShutdownS, "Max total shutdown time before forcing exit")

	// Observability (ambient, not core correctness surface).
	resourceSampleInterval := flag.Duration("resource-sample-interval", 15*time.Second, "Host CPU/memory sampling interval")
	tracingEnabled := flag.Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	tracingExporter := flag.String("tracing-exporter", string(tracing.ExporterNone), "Trace exporter: none, stdout, otlp-grpc, otlp-http")
	tracingOTLPEndpoint := flag.String("tracing-otlp-endpoint", "", "OTLP exporter endpoint")
	tracingSampleRate := flag.Float64("tracing-sample-rate", 1.0, "Trace sample rate, 0.0-1.0")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := buildConfig(buildConfigParams{
		maxMessagesPerReceive: *maxMessagesPerReceive,
		waitSeconds:           *waitSeconds,
		visibilityTimeoutS:    *visibilityTimeoutS,
		maxConcurrentMessages: *maxConcurrentMessages,
		objectMaxLineBytes:    *objectMaxLineBytes,
		maxDecodedBytes:       *maxDecodedBytes,
		accuracyThresholdM:    *accuracyThresholdM,
		hotspotEnabled:        *hotspotEnabled,
		hotspotAction:         config.HotspotAction(*hotspotAction),
		deliveryStreamName:    *deliveryStreamName,
		maxRecordsPerBatch:    *maxRecordsPerBatch,
		maxBatchBytes:         *maxBatchBytes,
		maxRecordBytes:        *maxRecordBytes,
		batchTimeoutMs:        *batchTimeoutMs,
		maxRetries:            *maxRetries,
		retryBackoffMs:        *retryBackoffMs,
		publishTimeoutMs:      *publishTimeoutMs,
		processingDrainS:      *processingDrainS,
		publishDrainS:         *publishDrainS,
		maxTotalS:             *maxTotalS,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := queue.Connect(queue.NATSConfig{
		URL:           *natsURL,
		Username:      *natsUsername,
		Password:      *natsPassword,
		CredsFilePath: *natsCreds,
		Stream:        *natsStream,
		Consumer:      *natsConsumer,
		Subject:       *natsSubject,
	})
	if err != nil {
		logger.Error("failed to connect to queue", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
		Region:       *s3Region,
		Endpoint:     *s3Endpoint,
		AccessKey:    *s3AccessKey,
		SecretKey:    *s3SecretKey,
		UsePathStyle: *s3PathStyle,
	})
	if err != nil {
		logger.Error("failed to build object store client", "error", err)
		os.Exit(1)
	}

	deliveryStream, err := publisher.NewFirehoseStream(ctx, publisher.FirehoseConfig{
		Region:    *firehoseRegion,
		Endpoint:  *firehoseEndpoint,
		AccessKey: *firehoseAccessKey,
		SecretKey: *firehoseSecretKey,
	})
	if err != nil {
		logger.Error("failed to build delivery stream client", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	resourceMonitor := metrics.NewResourceMonitor(collector, *resourceSampleInterval, logger)
	go resourceMonitor.Run(ctx)

	tracer, err := tracing.NewTracer(ctx, &tracing.Config{
		Enabled:      *tracingEnabled,
		ServiceName:  "wifi-transformer",
		ExporterType: tracing.ExporterType(*tracingExporter),
		OTLPEndpoint: *tracingOTLPEndpoint,
		SampleRate:   *tracingSampleRate,
	})
	if err != nil {
		logger.Error("failed to build tracer", "error", err)
		os.Exit(1)
	}
	defer tracer.Shutdown(context.Background())

	ouiSet := loadOUISet(*ouiListPath, logger)

	batcher := publisher.NewBatcher(publisher.Config{
		MaxRecordsPerBatch: cfg.Delivery.MaxRecordsPerBatch,
		MaxBatchBytes:      cfg.Delivery.MaxBatchBytes,
		MaxRecordBytes:     cfg.Delivery.MaxRecordBytes,
		BatchTimeout:       time.Duration(cfg.Delivery.BatchTimeoutMs) * time.Millisecond,
		MaxRetries:         cfg.Delivery.MaxRetries,
		RetryBackoff:       time.Duration(cfg.Delivery.RetryBackoffMs) * time.Millisecond,
		PublishTimeout:     time.Duration(cfg.Delivery.PublishTimeoutMs) * time.Millisecond,
	}, deliveryStream, collector, logger)
	batcher.SetEventLogger(events.GetGlobalEventLogger())
	batcher.SetTracer(tracer)
	batcher.Start()

	w := worker.New(worker.Config{
		Store:        store,
		Decoder:      codec.NewDecoder(cfg.MaxDecodedBytes, logger),
		Parser:       parser.NewParser(logger),
		Transformer:  transform.NewTransformer(nil),
		Filter:       filter.NewFilter(cfg.Filter, ouiSet),
		Batcher:      batcher,
		Logger:       logger,
		Metrics:      collector,
		IDGen:        func() string { return ulid.Make().String() },
		MaxLineBytes: cfg.ObjectMaxLineBytes,
		EventsFor: func(processingBatchID, messageID string) *events.EventLogger {
			return events.NewEventLogger(processingBatchID, messageID)
		},
		Tracer: tracer,
	})

	loop := consumer.New(cfg.Queue, cfg.MaxConcurrentMessages, source, w, batcher, collector, logger)

	coordinator := lifecycle.New(loop, batcher, cfg.Shutdown, collector, logger)
	coordinator.SetEventLogger(events.GetGlobalEventLogger())

	go reportPendingBytes(ctx, batcher, collector)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	logger.Info("transformer starting",
		"nats_stream", *natsStream, "nats_consumer", *natsConsumer,
		"max_concurrent_messages", cfg.MaxConcurrentMessages)

	loop.Run(ctx)

	logger.Info("consumer loop stopped, draining")
	coordinator.Shutdown(context.Background())
	batcher.Close()
	logger.Info("transformer stopped")
}

// reportPendingBytes forwards the batcher's buffer occupancy to the metrics
// registry on a short interval, since the Batcher has no registry reference
// of its own (spec.md keeps C7 decoupled from the metrics package).
func reportPendingBytes(ctx context.Context, batcher *publisher.Batcher, collector *metrics.Collector) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			collector.SetPendingBytesFrac(batcher.PendingBytesFrac())
		case <-ctx.Done():
			return
		}
	}
}

func loadOUISet(path string, logger *slog.Logger) oui.Set {
	if path == "" {
		return oui.NewStaticSet(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read oui list file, mobile-hotspot policy will match nothing", "path", path, "error", err)
		return oui.NewStaticSet(nil)
	}
	lines := strings.Split(string(data), "\n")
	ouis := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			ouis = append(ouis, l)
		}
	}
	return oui.NewStaticSet(ouis)
}

type buildConfigParams struct {
	maxMessagesPerReceive int
	waitSeconds           int
	visibilityTimeoutS    int
	maxConcurrentMessages int
	objectMaxLineBytes    int
	maxDecodedBytes       int

	accuracyThresholdM float64
	hotspotEnabled     bool
	hotspotAction      config.HotspotAction

	deliveryStreamName string
	maxRecordsPerBatch int
	maxBatchBytes      int
	maxRecordBytes     int
	batchTimeoutMs     int
	maxRetries         int
	retryBackoffMs     int
	publishTimeoutMs   int

	processingDrainS time.Duration
	publishDrainS    time.Duration
	maxTotalS        time.Duration
}

// buildConfig overlays flag-supplied values onto config.Default(), the
// minimal flag-based wiring spec.md's out-of-scope "configuration loader"
// leaves to the composition root.
func buildConfig(p buildConfigParams) config.Config {
	cfg := config.Default()

	cfg.Queue.MaxMessagesPerReceive = p.maxMessagesPerReceive
	cfg.Queue.WaitSeconds = p.waitSeconds
	cfg.Queue.VisibilityTimeoutS = p.visibilityTimeoutS
	cfg.MaxConcurrentMessages = p.maxConcurrentMessages
	cfg.ObjectMaxLineBytes = p.objectMaxLineBytes
	cfg.MaxDecodedBytes = p.maxDecodedBytes

	cfg.Filter.AccuracyThresholdM = p.accuracyThresholdM
	cfg.Filter.MobileHotspot.Enabled = p.hotspotEnabled
	cfg.Filter.MobileHotspot.Action = p.hotspotAction

	cfg.Delivery.StreamName = p.deliveryStreamName
	cfg.Delivery.MaxRecordsPerBatch = p.maxRecordsPerBatch
	cfg.Delivery.MaxBatchBytes = p.maxBatchBytes
	cfg.Delivery.MaxRecordBytes = p.maxRecordBytes
	cfg.Delivery.BatchTimeoutMs = p.batchTimeoutMs
	cfg.Delivery.MaxRetries = p.maxRetries
	cfg.Delivery.RetryBackoffMs = p.retryBackoffMs
	cfg.Delivery.PublishTimeoutMs = p.publishTimeoutMs

	cfg.Shutdown.ProcessingDrainS = p.processingDrainS
	cfg.Shutdown.PublishDrainS = p.publishDrainS
	cfg.Shutdown.MaxTotalS = p.maxTotalS

	return cfg
}
