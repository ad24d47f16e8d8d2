// Package events publie les événements de commande sur Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"vitrine_back_end/internal/config"
	"vitrine_back_end/internal/models"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

// OrderEvent est le message publié. Les montants restent en centimes.
type OrderEvent struct {
	Type       string             `json:"type"`
	OrderID    string             `json:"order_id"`
	CartID     string             `json:"cart_id,omitempty"`
	UserID     string             `json:"user_id,omitempty"`
	Status     models.OrderStatus `json:"status"`
	TotalCents int64              `json:"total_cents"`
	Total      string             `json:"total"`
	At         time.Time          `json:"at"`
}

// NewOrderEvent construit l'événement à partir de l'état courant de la commande.
func NewOrderEvent(kind string, o *models.Order) OrderEvent {
	return OrderEvent{
		Type:       kind,
		OrderID:    o.ID,
		CartID:     o.CartID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalCents: o.TotalCents,
		Total:      models.FormatCents(o.TotalCents),
		At:         o.UpdatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher écrit un message par événement, clé = id de commande pour garder l'ordre.
type KafkaPublisher struct {
	w messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encodage événement %s: %w", ev.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: body,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publication %s pour %s: %w", ev.Type, ev.OrderID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
