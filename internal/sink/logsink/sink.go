// Package logsink writes alerts to the structured log.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/metrics"
)

// Sink logs every alert at info level.
type Sink struct {
	logger *zap.Logger
}

// New creates a Sink.
func New(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{logger: logger}
}

// Deliver implements monitor.Sink.
func (s *Sink) Deliver(_ context.Context, alerts []string) error {
	for i, a := range alerts {
		s.logger.Info("price alert", zap.Int("index", i), zap.String("alert", a))
		metrics.ObserveDelivery("log", "ok")
	}
	return nil
}
