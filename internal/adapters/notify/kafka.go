package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes opened events as JSON. Messages are keyed by
// rule and segment so one pair always lands on the same partition.
type KafkaNotifier struct {
	w messageWriter
}

func NewKafkaNotifier(cfg KafkaConfig) *KafkaNotifier {
	return &KafkaNotifier{w: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) NotifyOpened(ctx context.Context, ev *domain.AlertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.RuleID + ":" + ev.SegmentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(ev.Severity)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error { return k.w.Close() }

var _ ports.Notifier = (*KafkaNotifier)(nil)
