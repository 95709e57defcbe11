package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wifi-pipeline/transformer/internal/config"
	"github.com/wifi-pipeline/transformer/internal/queue"
	"github.com/wifi-pipeline/transformer/internal/worker"
)

type fakeSource struct {
	mu        sync.Mutex
	msgs      []queue.Message
	served    bool
	acked     []string
	nacked    []string
	extended  int32
	receiveFn func(ctx context.Context, max, wait int) ([]queue.Message, error)
}

func (f *fakeSource) Receive(ctx context.Context, maxMessages, waitSeconds int) ([]queue.Message, error) {
	if f.receiveFn != nil {
		return f.receiveFn(ctx, maxMessages, waitSeconds)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served {
		return nil, nil
	}
	f.served = true
	out := f.msgs
	if len(out) > maxMessages {
		out = out[:maxMessages]
	}
	return out, nil
}

func (f *fakeSource) ExtendVisibility(ctx context.Context, handle string, seconds int) error {
	atomic.AddInt32(&f.extended, 1)
	return nil
}

func (f *fakeSource) Ack(ctx context.Context, handle string) error {
	f.mu.Lock()
	f.acked = append(f.acked, handle)
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) Nack(ctx context.Context, handle string) error {
	f.mu.Lock()
	f.nacked = append(f.nacked, handle)
	f.mu.Unlock()
	return nil
}

type fakeWorkerPool struct {
	outcome worker.Outcome
	delay   time.Duration
}

func (f *fakeWorkerPool) ProcessMessage(ctx context.Context, body string) worker.Outcome {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.outcome
}

type fakeBacklog struct {
	frac atomic.Int64 // stored as frac*1000
}

func (f *fakeBacklog) set(v float64) { f.frac.Store(int64(v * 1000)) }
func (f *fakeBacklog) PendingBytesFrac() float64 {
	return float64(f.frac.Load()) / 1000
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		MaxMessagesPerReceive: 10,
		WaitSeconds:           1,
		VisibilityTimeoutS:    60,
	}
}

func TestLoop_DispatchesAndAcksOnSuccess(t *testing.T) {
	source := &fakeSource{msgs: []queue.Message{{Body: "a", Handle: "h1"}, {Body: "b", Handle: "h2"}}}
	pool := &fakeWorkerPool{outcome: worker.OutcomeAck}
	l := New(testQueueConfig(), 4, source, pool, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	deadline := time.After(time.Second)
	for {
		source.mu.Lock()
		n := len(source.acked)
		source.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 2 acks, got %d", n)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	l.Stop()
	cancel()
}

func TestLoop_NacksOnFailure(t *testing.T) {
	source := &fakeSource{msgs: []queue.Message{{Body: "a", Handle: "h1"}}}
	pool := &fakeWorkerPool{outcome: worker.OutcomeNack}
	l := New(testQueueConfig(), 4, source, pool, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	deadline := time.After(time.Second)
	for {
		source.mu.Lock()
		n := len(source.nacked)
		source.mu.Unlock()
		if n == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("expected 1 nack, got %d", n)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestLoop_PausesOnBackpressure(t *testing.T) {
	backlog := &fakeBacklog{}
	backlog.set(0.9)

	var receiveCount int32
	source := &fakeSource{receiveFn: func(ctx context.Context, max, wait int) ([]queue.Message, error) {
		atomic.AddInt32(&receiveCount, 1)
		return nil, nil
	}}
	pool := &fakeWorkerPool{outcome: worker.OutcomeAck}
	l := New(testQueueConfig(), 4, source, pool, backlog, nil, nil)
	l.cfg.BackpressureCooldown = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	time.Sleep(60 * time.Millisecond)
	cancel()

	if atomic.LoadInt32(&receiveCount) != 0 {
		t.Fatalf("expected no receives while backpressured, got %d", receiveCount)
	}
}

func TestLoop_DrainWaitsForInFlight(t *testing.T) {
	source := &fakeSource{msgs: []queue.Message{{Body: "a", Handle: "h1"}}}
	pool := &fakeWorkerPool{outcome: worker.OutcomeAck, delay: 50 * time.Millisecond}
	l := New(testQueueConfig(), 4, source, pool, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	time.Sleep(10 * time.Millisecond) // let dispatch start
	l.Stop()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	if err := l.Drain(drainCtx); err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	if l.InFlight() != 0 {
		t.Fatalf("expected 0 in-flight after drain, got %d", l.InFlight())
	}
}

func TestLoop_AvailableSlotsBoundsConcurrency(t *testing.T) {
	l := New(testQueueConfig(), 2, &fakeSource{}, &fakeWorkerPool{}, nil, nil, nil)
	if got := l.availableSlots(); got != 2 {
		t.Fatalf("expected 2 available slots initially, got %d", got)
	}
}
