// Package metrics implements the Collector that backs every package-local
// Metrics interface (worker, publisher, consumer, lifecycle) with real
// Prometheus instruments, plus a gopsutil-based host
// resource sampler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wifi-pipeline/transformer/internal/filter"
)

// Collector is the single Prometheus registry-backed instrument set for the
// transformer. One Collector satisfies every downstream package's narrow
// Metrics interface; construct it once in the composition root and pass the
// same pointer everywhere.
type Collector struct {
	malformedEvents       prometheus.Counter
	objectNotFound        prometheus.Counter
	transientStorage      prometheus.Counter
	decodeFailures        prometheus.Counter
	parseFailures         prometheus.Counter
	filterDropped         *prometheus.CounterVec
	measurementsEmitted   prometheus.Counter
	recordTooLarge        prometheus.Counter
	published             prometheus.Counter
	publishFailed         prometheus.Counter
	publishGaveUp         prometheus.Counter
	receiveErrors         prometheus.Counter
	backpressurePauses    prometheus.Counter
	acked                 prometheus.Counter
	nacked                prometheus.Counter
	processingAbandoned   prometheus.Counter
	publishDrainAbandon   prometheus.Counter
	cpuPercent            prometheus.Gauge
	memUsedBytes          prometheus.Gauge
	pendingBatchBytesFrac prometheus.Gauge
}

// NewCollector registers every instrument against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry; pass prometheus.DefaultRegisterer in production so
// promhttp.Handler() picks everything up.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	namespace := "wifi_transformer"

	return &Collector{
		malformedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "malformed_events_total",
			Help: "Upload events that failed to parse as a valid S3 event envelope.",
		}),
		objectNotFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "object_not_found_total",
			Help: "Object store lookups that returned not-found.",
		}),
		transientStorage: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "transient_storage_errors_total",
			Help: "Object store errors treated as retryable.",
		}),
		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "decode_failures_total",
			Help: "Lines that failed base64+gzip decode and were skipped.",
		}),
		parseFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "parse_failures_total",
			Help: "Decoded documents that failed structural parsing and were skipped.",
		}),
		filterDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "filter_dropped_total",
			Help: "Measurements dropped by the sanity filter, by reason.",
		}, []string{"reason"}),
		measurementsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "measurements_emitted_total",
			Help: "Measurements accepted and submitted to the batcher.",
		}),
		recordTooLarge: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "record_too_large_total",
			Help: "Records dropped for exceeding max_record_bytes.",
		}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "published_total",
			Help: "Records acknowledged OK by the delivery stream.",
		}),
		publishFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_failed_total",
			Help: "Records rejected by the delivery stream as non-retryable.",
		}),
		publishGaveUp: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_gave_up_total",
			Help: "Records dropped after exhausting publish retries.",
		}),
		receiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_receive_errors_total",
			Help: "Queue long-poll receive calls that returned an error.",
		}),
		backpressurePauses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "backpressure_pauses_total",
			Help: "Times the consumer loop paused receives for batcher backpressure.",
		}),
		acked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_acked_total",
			Help: "Queue messages acknowledged after terminal success.",
		}),
		nacked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_nacked_total",
			Help: "Queue messages left for redelivery after a failure.",
		}),
		processingAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "shutdown_processing_abandoned_total",
			Help: "Shutdown sequences that exceeded processing_drain_s with work still in flight.",
		}),
		publishDrainAbandon: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "shutdown_publish_abandoned_total",
			Help: "Shutdown sequences that exceeded publish_drain_s before the batcher flushed.",
		}),
		cpuPercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_cpu_percent",
			Help: "Host CPU utilization percent, sampled by the resource monitor.",
		}),
		memUsedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_memory_used_bytes",
			Help: "Host memory in use, sampled by the resource monitor.",
		}),
		pendingBatchBytesFrac: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "batcher_pending_bytes_frac",
			Help: "Fraction of max_batch_bytes currently buffered across all streams.",
		}),
	}
}

// worker.Metrics: extract, storage, decode, parse, filter and emit counts.
func (c *Collector) IncMalformedEvent()        { c.malformedEvents.Inc() }
func (c *Collector) IncObjectNotFound()        { c.objectNotFound.Inc() }
func (c *Collector) IncTransientStorageError() { c.transientStorage.Inc() }
func (c *Collector) IncDecodeFailure()         { c.decodeFailures.Inc() }
func (c *Collector) IncParseFailure()          { c.parseFailures.Inc() }

func (c *Collector) IncFilterDropped(reason filter.Reason) {
	c.filterDropped.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) IncMeasurementsEmitted(n int) { c.measurementsEmitted.Add(float64(n)) }

func (c *Collector) IncRecordTooLarge(n int) { c.recordTooLarge.Add(float64(n)) }
func (c *Collector) IncPublished(n int)      { c.published.Add(float64(n)) }
func (c *Collector) IncPublishFailed(n int)  { c.publishFailed.Add(float64(n)) }
func (c *Collector) IncPublishGaveUp(n int)  { c.publishGaveUp.Add(float64(n)) }

func (c *Collector) IncReceiveError()      { c.receiveErrors.Inc() }
func (c *Collector) IncBackpressurePause() { c.backpressurePauses.Inc() }
func (c *Collector) IncAcked()             { c.acked.Inc() }
func (c *Collector) IncNacked()            { c.nacked.Inc() }

func (c *Collector) IncProcessingDrainAbandoned(inFlight int64) { c.processingAbandoned.Inc() }
func (c *Collector) IncPublishDrainAbandoned()                  { c.publishDrainAbandon.Inc() }

// SetPendingBytesFrac records the batcher's current buffer occupancy; the
// composition root samples publisher.Batcher.PendingBytesFrac() on a timer
// and forwards it here, since the Batcher itself has no registry reference.
func (c *Collector) SetPendingBytesFrac(frac float64) { c.pendingBatchBytesFrac.Set(frac) }

// SetHostResources records the most recent resource sample.
func (c *Collector) SetHostResources(s ResourceSample) {
	c.cpuPercent.Set(s.CPUPercent)
	c.memUsedBytes.Set(float64(s.MemUsedBytes))
}
