package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Multi delivers each batch to every sink in order and joins their errors.
type Multi []monitor.Sink

// Deliver implements monitor.Sink.
func (m Multi) Deliver(ctx context.Context, alerts []string) error {
	var errs []error
	for i, s := range m {
		if err := s.Deliver(ctx, alerts); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
