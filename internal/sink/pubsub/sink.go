// Package pubsub publishes alerts to a Google Cloud Pub/Sub topic, one message per alert.
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

	"github.com/JakeFAU/price-error-watch/internal/metrics"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Message is the JSON body of each published alert.
type Message struct {
	Alert       string    `json:"alert"`
	Index       int       `json:"index"`
	BatchSize   int       `json:"batch_size"`
	PublishedAt time.Time `json:"published_at"`
}

// Sink wraps a Pub/Sub topic.
type Sink struct {
	topic  *pubsub.Topic
	clock  monitor.Clock
	logger *zap.Logger
}

// New creates a Sink for topic.
func New(topic *pubsub.Topic, clock monitor.Clock, logger *zap.Logger) (*Sink, error) {
	if topic == nil {
		return nil, errors.New("pubsub topic is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{topic: topic, clock: clock, logger: logger}, nil
}

// Deliver publishes every alert and waits for the server acknowledgements.
// Individual failures are logged; the returned error joins them.
func (s *Sink) Deliver(ctx context.Context, alerts []string) error {
	results := make([]*pubsub.PublishResult, len(alerts))
	now := s.now()
	for i, text := range alerts {
		data, err := json.Marshal(Message{Alert: text, Index: i, BatchSize: len(alerts), PublishedAt: now})
		if err != nil {
			return fmt.Errorf("marshal alert %d: %w", i, err)
		}
		msg := &pubsub.Message{Data: data, Attributes: map[string]string{"content_type": "application/json"}}
		otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Attributes))
		results[i] = s.topic.Publish(ctx, msg)
	}

	var errs []error
	for i, r := range results {
		id, err := r.Get(ctx)
		if err != nil {
			metrics.ObserveDelivery("pubsub", "error")
			s.logger.Warn("pubsub publish failed", zap.Int("index", i), zap.Error(err))
			errs = append(errs, fmt.Errorf("alert %d: %w", i, err))
			continue
		}
		metrics.ObserveDelivery("pubsub", "ok")
		s.logger.Debug("alert published", zap.Int("index", i), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close flushes pending messages.
func (s *Sink) Close() {
	s.topic.Stop()
}

func (s *Sink) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
