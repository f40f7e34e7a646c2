package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports/portstest"
)

func testEvent() *domain.AlertEvent {
	return &domain.AlertEvent{
		ID:        "ev-1",
		RuleID:    "rule-1",
		Metric:    domain.MetricNetPower,
		Severity:  domain.SeverityHigh,
		Scope:     domain.RuleScopeSegment,
		CityID:    "pune",
		SegmentID: "seg-7",
		Status:    domain.StatusOpen,
		OpenedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Value:     8.5,
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) NotifyOpened(context.Context, *domain.AlertEvent) error {
	s.calls++
	return s.err
}

func TestKafkaNotifierKeysByRuleAndSegment(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaNotifier{w: w}

	require.NoError(t, k.NotifyOpened(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "rule-1:seg-7", string(w.msgs[0].Key))

	var got domain.AlertEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "ev-1", got.ID)
	assert.Equal(t, 8.5, got.Value)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifierWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	k := &KafkaNotifier{w: &fakeWriter{err: boom}}
	err := k.NotifyOpened(context.Background(), testEvent())
	assert.ErrorIs(t, err, boom)
}

func TestSlackNotifierPostsWebhook(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Channel: "#ops", Timeout: time.Second})
	require.NoError(t, s.NotifyOpened(context.Background(), testEvent()))

	assert.Equal(t, "#ops", got.Channel)
	assert.Contains(t, got.Text, "seg-7")
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "#FF4500", got.Attachments[0].Color)
}

func TestSlackNotifierRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Timeout: time.Second})
	assert.Error(t, s.NotifyOpened(context.Background(), testEvent()))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	next := &stubNotifier{name: "slack", err: errors.New("timeout")}
	b := NewBreaker(next, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, portstest.NewObs())

	for i := 0; i < 2; i++ {
		assert.Error(t, b.NotifyOpened(context.Background(), testEvent()))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.NotifyOpened(context.Background(), testEvent())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, "slack", b.Name())
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	bad := &stubNotifier{name: "kafka", err: errors.New("down")}
	good := &stubNotifier{name: "slack"}
	f := NewFanout(bad, good)

	err := f.NotifyOpened(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka: down")
	assert.Equal(t, 1, good.calls)
}

func TestNewReturnsNilWithoutChannels(t *testing.T) {
	assert.Nil(t, New(Config{}, portstest.NewObs()))

	f := New(Config{Slack: SlackConfig{WebhookURL: "http://example.invalid/hook"}}, portstest.NewObs())
	require.NotNil(t, f)
	assert.Len(t, f.targets, 1)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	assert.Equal(t, "thermocity.alerts.opened", c.Kafka.Topic)
	assert.Equal(t, uint32(5), c.Breaker.MaxFailures)
	assert.NoError(t, c.Validate())

	c.Kafka.Brokers = []string{"kafka:9092", ""}
	assert.Error(t, c.Validate())
}
