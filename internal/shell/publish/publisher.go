// Package publish delivers finished deployment plans to downstream consumers
// (renderers and exporters) over Kafka.
// This is part of the Imperative Shell.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/releaseplan/internal/core/deployment"
	"github.com/segmentio/kafka-go"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNoBrokers is returned when the publisher is configured without brokers.
	ErrNoBrokers = errors.New("at least one broker required")

	// ErrNoTopic is returned when the publisher is configured without a topic.
	ErrNoTopic = errors.New("topic required")

	// ErrPublishFailed is returned when a plan could not be delivered after all attempts.
	ErrPublishFailed = errors.New("plan publish failed")
)

// =============================================================================
// Publisher
// =============================================================================

// PlanEvent is the message published for every computed plan.
type PlanEvent struct {
	PlanID      string          `json:"planId"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Plan        deployment.Plan `json:"plan"`
}

// Publisher delivers plan events.
type Publisher interface {
	Publish(ctx context.Context, event PlanEvent) error
	Close() error
}

// Nop discards every event. It is used when publishing is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, PlanEvent) error { return nil }
func (Nop) Close() error                              { return nil }

// =============================================================================
// Kafka Publisher
// =============================================================================

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic receives one message per plan, keyed by plan ID.
	Topic string

	// MaxAttempts bounds delivery retries. Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout. Defaults to 10s if zero.
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes plan events with bounded retries and exponential backoff.
type KafkaPublisher struct {
	brokers      []string
	writer       messageWriter
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	logger       *slog.Logger
}

// NewKafkaPublisher constructs a KafkaPublisher.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: %w", ErrNoBrokers)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: %w", ErrNoTopic)
	}
	cfg = cfg.withDefaults()

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1, // retries are driven by Publish
	}
	p := newKafkaPublisher(w, cfg, logger)
	p.brokers = cfg.Brokers
	return p, nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &KafkaPublisher{
		writer:       w,
		maxAttempts:  cfg.MaxAttempts,
		writeTimeout: cfg.WriteTimeout,
		backoff:      100 * time.Millisecond,
		logger:       logger,
	}
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Publish writes the event as JSON, keyed by plan ID.
func (p *KafkaPublisher) Publish(ctx context.Context, event PlanEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal plan event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.PlanID),
		Value: value,
		Time:  event.GeneratedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	var lastErr error
	backoff := p.backoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
		err := p.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			p.logger.Debug("plan published", "plan_id", event.PlanID, "attempt", attempt)
			return nil
		}

		lastErr = err
		p.logger.Warn("plan publish attempt failed",
			"plan_id", event.PlanID,
			"attempt", attempt,
			"error", err,
		)
		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrPublishFailed, p.maxAttempts, lastErr)
}

// Ping reports whether any configured broker accepts connections.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return ErrNoBrokers
	}
	dialer := &kafka.Dialer{Timeout: p.writeTimeout}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no broker reachable: %w", lastErr)
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
