// Package events publishes payment status changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"feeportal/config"
	"feeportal/internal/domain"
	"feeportal/internal/models"

	"github.com/segmentio/kafka-go"
)

type StatusEvent struct {
	Event      string                 `json:"event"`
	OrderID    string                 `json:"order_id"`
	Status     domain.PaymentStatus   `json:"status"`
	OccurredAt time.Time              `json:"occurred_at"`
	View       models.OrderWithStatus `json:"view"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per applied status transition, keyed by
// order id so a partition sees an order's events in order.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher returns nil when no brokers are configured.
func NewKafkaPublisher(cfg *config.KafkaConfig) *KafkaPublisher {
	if len(cfg.Brokers) == 0 {
		log.Printf("[events] kafka disabled (KAFKA_BROKERS is empty)")
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("[events] kafka publisher ready brokers=%v topic=%s", cfg.Brokers, cfg.Topic)
	return &KafkaPublisher{writer: w, topic: cfg.Topic}
}

func (p *KafkaPublisher) StatusChanged(ctx context.Context, view models.OrderWithStatus) {
	if p == nil {
		return
	}
	value, err := json.Marshal(StatusEvent{
		Event:      domain.EventStatusChanged,
		OrderID:    view.OrderID,
		Status:     view.Status,
		OccurredAt: time.Now().UTC(),
		View:       view,
	})
	if err != nil {
		log.Printf("[events] marshal order_id=%s: %v", view.OrderID, err)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(view.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(domain.EventStatusChanged)},
		},
	})
	if err != nil {
		log.Printf("[events] publish order_id=%s status=%s topic=%s: %v", view.OrderID, view.Status, p.topic, err)
	}
}

func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
