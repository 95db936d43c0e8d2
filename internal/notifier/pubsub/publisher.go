// Package pubsub publishes notifications to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Message is the JSON document published for each notification.
type Message struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Publisher implements monitor.Notifier on a Pub/Sub topic.
type Publisher struct {
	topic  *pubsub.Topic
	logger *zap.Logger
	now    func() time.Time
}

// New returns a Publisher for topicID after checking that the topic exists.
func New(ctx context.Context, client *pubsub.Client, topicID string, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub: client is required")
	}
	if topicID == "" {
		return nil, errors.New("pubsub: topic is required")
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub: check topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub: topic %q does not exist", topicID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{topic: topic, logger: logger.Named("pubsub"), now: time.Now}, nil
}

// Notify publishes one message and waits for the server ack.
func (p *Publisher) Notify(ctx context.Context, subject, body string) error {
	data, err := json.Marshal(Message{Subject: subject, Body: body, SentAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("pubsub: marshal message: %w", err)
	}

	attrs := propagation.MapCarrier{"subject": subject}
	otel.GetTextMapPropagator().Inject(ctx, attrs)

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub: publish: %w", err)
	}
	p.logger.Info("notification published", zap.String("message_id", id))
	return nil
}

// Stop flushes pending publishes.
func (p *Publisher) Stop() {
	p.topic.Stop()
}
