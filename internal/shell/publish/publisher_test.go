package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/artpar/releaseplan/internal/core/deployment"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeWriter records messages and fails the first failures writes.
type fakeWriter struct {
	failures int
	calls    int
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.calls <= w.failures {
		return errors.New("broker unavailable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testPublisher(w *fakeWriter, attempts int) *KafkaPublisher {
	p := newKafkaPublisher(w, KafkaConfig{MaxAttempts: attempts}, nil)
	p.backoff = time.Millisecond
	return p
}

func testEvent() PlanEvent {
	return PlanEvent{
		PlanID:      "plan-1",
		GeneratedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Plan: deployment.Plan{
			Summary:       deployment.Summary{Total: 1, Deployable: 1},
			Sequences:     []deployment.SequenceEntry{{Sequence: 1, StoryID: "US-1", Risk: 0.2, Rationale: deployment.RationaleFirst, DeveloperCount: 1}},
			ConflictedIDs: []string{},
			BehindProdIDs: []string{},
		},
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "plans"}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestNewKafkaPublisher_RequiresTopic(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.ErrorIs(t, err, ErrNoTopic)
}

func TestNewKafkaPublisher_Defaults(t *testing.T) {
	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "plans"}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, p.maxAttempts)
	assert.Equal(t, 10*time.Second, p.writeTimeout)
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := testPublisher(w, 3)

	require.NoError(t, p.Publish(context.Background(), testEvent()))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "plan-1", string(msg.Key))
	assert.Equal(t, testEvent().GeneratedAt, msg.Time)

	var got PlanEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, testEvent(), got)
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := testPublisher(w, 3)

	require.NoError(t, p.Publish(context.Background(), testEvent()))

	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.messages, 1)
}

func TestPublish_GivesUpAfterMaxAttempts(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := testPublisher(w, 2)

	err := p.Publish(context.Background(), testEvent())

	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Equal(t, 2, w.calls)
	assert.Empty(t, w.messages)
}

func TestPublish_StopsOnCancelledContext(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := testPublisher(w, 5)
	p.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, testEvent())

	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, w.calls)
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	p := testPublisher(w, 1)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)

	var nilPublisher *KafkaPublisher
	assert.NoError(t, nilPublisher.Close())
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.NoError(t, p.Close())
}

func TestPing_NoBrokers(t *testing.T) {
	p := testPublisher(&fakeWriter{}, 1)
	assert.ErrorIs(t, p.Ping(context.Background()), ErrNoBrokers)
}

func TestPing_UnreachableBroker(t *testing.T) {
	// Port 1 on loopback refuses connections immediately.
	p, err := NewKafkaPublisher(KafkaConfig{
		Brokers:      []string{"127.0.0.1:1"},
		Topic:        "plans",
		WriteTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Error(t, p.Ping(context.Background()))
}
