package worker

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/wifi-pipeline/transformer/internal/blobstore"
	"github.com/wifi-pipeline/transformer/internal/codec"
	"github.com/wifi-pipeline/transformer/internal/config"
	"github.com/wifi-pipeline/transformer/internal/filter"
	"github.com/wifi-pipeline/transformer/internal/model"
	"github.com/wifi-pipeline/transformer/internal/oui"
	"github.com/wifi-pipeline/transformer/internal/parser"
	"github.com/wifi-pipeline/transformer/internal/transform"
)

type fakeObjectStore struct {
	bodies map[string]string
	err    error
}

func (f *fakeObjectStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.bodies[bucket+"/"+key]
	if !ok {
		return nil, blobstore.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type fakeBatcher struct {
	mu      sync.Mutex
	records []model.Measurement
	err     error
}

func (f *fakeBatcher) Submit(ctx context.Context, streamName string, m model.Measurement) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.records = append(f.records, m)
	f.mu.Unlock()
	return nil
}

func gzipB64Line(t *testing.T, payload string) string {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(payload)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestWorker(store blobstore.ObjectStore, batcher BatchSubmitter) *Worker {
	return New(Config{
		Store:        store,
		Decoder:      codec.NewDecoder(1<<20, nil),
		Parser:       parser.NewParser(nil),
		Transformer:  transform.NewTransformer(nil),
		Filter:       filter.NewFilter(config.FilterConfig{AccuracyThresholdM: 150}, oui.NewStaticSet(nil)),
		Batcher:      batcher,
		MaxLineBytes: 1 << 20,
		IDGen:        func() string { return "test-batch-id" },
	})
}

func eventBody(bucket, key, etag string) string {
	return `{"Records":[{"eventTime":"2024-01-01T00:00:00Z","s3":{"bucket":{"name":"` + bucket + `"},"object":{"key":"` + key + `","eTag":"` + etag + `"}}}]}`
}

func TestProcessMessage_HappyPath(t *testing.T) {
	line := gzipB64Line(t, `{"dataVersion":"1","connectedEvents":[{"bssid":"AA:BB:CC:DD:EE:01","rssi":-60,"latitude":37.7749,"longitude":-122.4194,"location":{"latitude":37.7749,"longitude":-122.4194,"accuracy":10,"timestamp":1704067200000},"timestamp":1704067200000}]}`)
	store := &fakeObjectStore{bodies: map[string]string{"b/k.json.gz": line + "\n"}}
	batcher := &fakeBatcher{}
	w := newTestWorker(store, batcher)

	outcome := w.ProcessMessage(context.Background(), eventBody("b", "k.json.gz", "0123456789abcdef0123456789abcdef"))
	if outcome != OutcomeAck {
		t.Fatalf("expected OutcomeAck, got %v", outcome)
	}

	batcher.mu.Lock()
	defer batcher.mu.Unlock()
	if len(batcher.records) != 1 {
		t.Fatalf("expected 1 measurement submitted, got %d", len(batcher.records))
	}
	if batcher.records[0].ProcessingBatchID != "test-batch-id" {
		t.Fatalf("expected processing_batch_id to be set, got %+v", batcher.records[0])
	}
}

func TestProcessMessage_MalformedEventAcksAndDrops(t *testing.T) {
	store := &fakeObjectStore{}
	batcher := &fakeBatcher{}
	w := newTestWorker(store, batcher)

	outcome := w.ProcessMessage(context.Background(), "not json")
	if outcome != OutcomeAck {
		t.Fatalf("expected OutcomeAck for malformed event, got %v", outcome)
	}
}

func TestProcessMessage_ObjectNotFoundAcksAndDrops(t *testing.T) {
	store := &fakeObjectStore{bodies: map[string]string{}}
	batcher := &fakeBatcher{}
	w := newTestWorker(store, batcher)

	outcome := w.ProcessMessage(context.Background(), eventBody("b", "missing.json.gz", "0123456789abcdef0123456789abcdef"))
	if outcome != OutcomeAck {
		t.Fatalf("expected OutcomeAck for object-not-found, got %v", outcome)
	}
}

func TestProcessMessage_TransientStorageErrorNacks(t *testing.T) {
	store := &fakeObjectStore{err: blobstore.ErrTransientStorage}
	batcher := &fakeBatcher{}
	w := newTestWorker(store, batcher)

	outcome := w.ProcessMessage(context.Background(), eventBody("b", "k.json.gz", "0123456789abcdef0123456789abcdef"))
	if outcome != OutcomeNack {
		t.Fatalf("expected OutcomeNack for transient storage error, got %v", outcome)
	}
}

func TestProcessMessage_SubmitFailureNacks(t *testing.T) {
	line := gzipB64Line(t, `{"dataVersion":"1","connectedEvents":[{"bssid":"AA:BB:CC:DD:EE:01","rssi":-60,"timestamp":1704067200000,"location":{"latitude":37.7749,"longitude":-122.4194,"accuracy":10}}]}`)
	store := &fakeObjectStore{bodies: map[string]string{"b/k.json.gz": line + "\n"}}
	batcher := &fakeBatcher{err: context.DeadlineExceeded}
	w := newTestWorker(store, batcher)

	outcome := w.ProcessMessage(context.Background(), eventBody("b", "k.json.gz", "0123456789abcdef0123456789abcdef"))
	if outcome != OutcomeNack {
		t.Fatalf("expected OutcomeNack when submit fails, got %v", outcome)
	}
}

func TestProcessMessage_UndecodableLineDoesNotFailMessage(t *testing.T) {
	store := &fakeObjectStore{bodies: map[string]string{"b/k.json.gz": "not-valid-base64!!!\n"}}
	batcher := &fakeBatcher{}
	w := newTestWorker(store, batcher)

	outcome := w.ProcessMessage(context.Background(), eventBody("b", "k.json.gz", "0123456789abcdef0123456789abcdef"))
	if outcome != OutcomeAck {
		t.Fatalf("expected OutcomeAck (tolerant of undecodable lines), got %v", outcome)
	}
}
