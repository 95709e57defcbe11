package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wifi-pipeline/transformer/internal/model"
)

type fakeStream struct {
	mu      sync.Mutex
	batches [][][]byte
	respond func(records [][]byte) []PerRecordResult
}

func (f *fakeStream) PutBatch(ctx context.Context, streamName string, records [][]byte) ([]PerRecordResult, error) {
	f.mu.Lock()
	f.batches = append(f.batches, records)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(records), nil
	}
	results := make([]PerRecordResult, len(records))
	for i := range results {
		results[i] = PerRecordResult{OK: true}
	}
	return results, nil
}

func (f *fakeStream) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type countingMetrics struct {
	mu        sync.Mutex
	tooLarge  int
	published int
	failed    int
	gaveUp    int
}

func (m *countingMetrics) IncRecordTooLarge(n int) { m.mu.Lock(); m.tooLarge += n; m.mu.Unlock() }
func (m *countingMetrics) IncPublished(n int)      { m.mu.Lock(); m.published += n; m.mu.Unlock() }
func (m *countingMetrics) IncPublishFailed(n int)  { m.mu.Lock(); m.failed += n; m.mu.Unlock() }
func (m *countingMetrics) IncPublishGaveUp(n int)  { m.mu.Lock(); m.gaveUp += n; m.mu.Unlock() }

func testConfig() Config {
	return Config{
		MaxRecordsPerBatch: 3,
		MaxBatchBytes:      1 << 20,
		MaxRecordBytes:     1 << 10,
		BatchTimeout:       50 * time.Millisecond,
		MaxRetries:         2,
		RetryBackoff:       5 * time.Millisecond,
		PublishTimeout:     time.Second,
	}
}

func TestBatcher_FlushesOnCountTrigger(t *testing.T) {
	stream := &fakeStream{}
	metrics := &countingMetrics{}
	b := NewBatcher(testConfig(), stream, metrics, nil)
	b.Start()
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := b.Submit(ctx, "stream-a", model.Measurement{BSSID: "AA:BB:CC:DD:EE:01"}); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	// a 4th submit should trigger a flush of the first 3 before buffering itself
	require.NoError(t, b.Submit(ctx, "stream-a", model.Measurement{BSSID: "AA:BB:CC:DD:EE:02"}))

	deadline := time.After(time.Second)
	for stream.batchCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("expected at least one batch to have been flushed")
		default:
		}
	}
}

func TestBatcher_FlushesOnTimeTrigger(t *testing.T) {
	stream := &fakeStream{}
	metrics := &countingMetrics{}
	b := NewBatcher(testConfig(), stream, metrics, nil)
	b.Start()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Submit(ctx, "stream-a", model.Measurement{BSSID: "AA:BB:CC:DD:EE:01"}))

	deadline := time.After(time.Second)
	for stream.batchCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("expected timeout-triggered flush")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestBatcher_RecordTooLargeDropped(t *testing.T) {
	stream := &fakeStream{}
	metrics := &countingMetrics{}
	b := NewBatcher(testConfig(), stream, metrics, nil)
	b.Start()
	defer b.Close()

	big := model.Measurement{BSSID: "AA:BB:CC:DD:EE:01", SSID: string(make([]byte, 2048))}
	err := b.Submit(context.Background(), "stream-a", big)
	require.ErrorIs(t, err, ErrRecordTooLarge)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Equal(t, 1, metrics.tooLarge)
}

func TestBatcher_RetriesRetryableFailuresThenGivesUp(t *testing.T) {
	stream := &fakeStream{
		respond: func(records [][]byte) []PerRecordResult {
			results := make([]PerRecordResult, len(records))
			for i := range results {
				results[i] = PerRecordResult{Retryable: true, ErrorCode: "ServiceUnavailableException"}
			}
			return results
		},
	}
	metrics := &countingMetrics{}
	cfg := testConfig()
	cfg.MaxRetries = 1
	b := NewBatcher(cfg, stream, metrics, nil)
	b.Start()
	defer b.Close()

	require.NoError(t, b.Drain(context.Background()))
	require.NoError(t, b.Submit(context.Background(), "stream-a", model.Measurement{BSSID: "AA:BB:CC:DD:EE:01"}))
	require.NoError(t, b.Drain(context.Background()))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Equal(t, 1, metrics.gaveUp)
	require.Equal(t, 2, stream.batchCount(), "initial attempt + 1 retry")
}

func TestBatcher_NonRetryableFailureCountedNotRetried(t *testing.T) {
	stream := &fakeStream{
		respond: func(records [][]byte) []PerRecordResult {
			return []PerRecordResult{{Retryable: false, ErrorCode: "InvalidArgument"}}
		},
	}
	metrics := &countingMetrics{}
	b := NewBatcher(testConfig(), stream, metrics, nil)
	b.Start()
	defer b.Close()

	require.NoError(t, b.Submit(context.Background(), "stream-a", model.Measurement{BSSID: "AA:BB:CC:DD:EE:01"}))
	require.NoError(t, b.Drain(context.Background()))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	require.Equal(t, 1, metrics.failed)
	require.Equal(t, 0, metrics.gaveUp, "a non-retryable failure must not be counted as given-up")
	require.Equal(t, 1, stream.batchCount(), "no retry expected")
}

func TestBatcher_DrainFlushesAllStreams(t *testing.T) {
	stream := &fakeStream{}
	metrics := &countingMetrics{}
	b := NewBatcher(testConfig(), stream, metrics, nil)
	b.Start()
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Submit(ctx, "stream-a", model.Measurement{BSSID: "AA:BB:CC:DD:EE:01"}))
	require.NoError(t, b.Submit(ctx, "stream-b", model.Measurement{BSSID: "AA:BB:CC:DD:EE:02"}))

	require.NoError(t, b.Drain(ctx))

	require.Equal(t, 2, stream.batchCount(), "expected both streams flushed independently")
}
