package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSConfig configures the JetStream-backed MessageSource. Stream/Consumer
// must already exist (provisioning them is out of scope, per spec.md).
type NATSConfig struct {
	URL           string
	Username      string
	Password      string
	CredsFilePath string
	Stream        string
	Consumer      string
	Subject       string
}

// NATSSource is a MessageSource backed by a NATS JetStream durable pull
// consumer. Fetch maps onto Receive, msg.InProgress() onto
// ExtendVisibility, and msg.Ack()/msg.Nak() onto Ack/Nack directly.
type NATSSource struct {
	conn *nats.Conn
	sub  *nats.Subscription

	mu      sync.Mutex
	pending map[string]*nats.Msg
}

// Connect dials NATS and binds to the configured durable pull consumer. It
// reconnects without limit, waiting one second between attempts; no
// disconnect or error handlers are registered.
func Connect(cfg NATSConfig) (*NATSSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("queue: NATS URL is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("queue: NATS connect failed: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue: JetStream context failed: %w", err)
	}

	sub, err := js.PullSubscribe(cfg.Subject, cfg.Consumer, nats.BindStream(cfg.Stream))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue: pull subscribe failed: %w", err)
	}

	return &NATSSource{
		conn:    nc,
		sub:     sub,
		pending: make(map[string]*nats.Msg),
	}, nil
}

// Receive implements MessageSource.Receive via JetStream's pull-consumer
// Fetch. A Fetch that times out with nothing delivered returns an empty,
// nil-error result rather than an error, matching spec.md's long-poll
// contract.
func (s *NATSSource) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	msgs, err := s.sub.Fetch(maxMessages, nats.MaxWait(time.Duration(waitSeconds)*time.Second), nats.Context(ctx))
	if err != nil {
		if err == nats.ErrTimeout || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: fetch failed: %w", err)
	}

	out := make([]Message, 0, len(msgs))
	s.mu.Lock()
	for _, m := range msgs {
		handle := uuid.NewString()
		s.pending[handle] = m
		out = append(out, Message{Body: string(m.Data), Handle: handle})
	}
	s.mu.Unlock()
	return out, nil
}

// ExtendVisibility implements MessageSource.ExtendVisibility via
// msg.InProgress(), which tells the JetStream server to push back the next
// redelivery deadline without acking.
func (s *NATSSource) ExtendVisibility(ctx context.Context, handle string, seconds int) error {
	msg, err := s.lookup(handle)
	if err != nil {
		return err
	}
	if err := msg.InProgress(nats.Context(ctx)); err != nil {
		return fmt.Errorf("queue: extend visibility failed: %w", err)
	}
	return nil
}

// Ack implements MessageSource.Ack via msg.Ack(), then forgets the handle.
func (s *NATSSource) Ack(ctx context.Context, handle string) error {
	msg, err := s.takeAndForget(handle)
	if err != nil {
		return err
	}
	if err := msg.Ack(nats.Context(ctx)); err != nil {
		return fmt.Errorf("queue: ack failed: %w", err)
	}
	return nil
}

// Nack implements MessageSource.Nack via msg.Nak(), then forgets the
// handle; JetStream redelivers per the consumer's own backoff policy.
func (s *NATSSource) Nack(ctx context.Context, handle string) error {
	msg, err := s.takeAndForget(handle)
	if err != nil {
		return err
	}
	if err := msg.Nak(nats.Context(ctx)); err != nil {
		return fmt.Errorf("queue: nack failed: %w", err)
	}
	return nil
}

func (s *NATSSource) lookup(handle string) (*nats.Msg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.pending[handle]
	if !ok {
		return nil, fmt.Errorf("queue: unknown handle %q", handle)
	}
	return msg, nil
}

func (s *NATSSource) takeAndForget(handle string) (*nats.Msg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.pending[handle]
	if !ok {
		return nil, fmt.Errorf("queue: unknown handle %q", handle)
	}
	delete(s.pending, handle)
	return msg, nil
}

// Close releases the subscription and connection.
func (s *NATSSource) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
