package monitor

import (
	"context"
	"time"
)

// Collector fetches listings for one retail source.
//
// Implementations return products already filtered against maxPrice. Any error is
// treated as a tolerable, per-collector failure by the orchestrator.
type Collector interface {
	Name() string
	Fetch(ctx context.Context, keyword string, maxPrice float64) ([]Product, error)
}

// Sink receives the ordered alert batch produced by one cycle.
type Sink interface {
	Deliver(ctx context.Context, alerts []string) error
}

// PriceLedger is the detector's view of the historical price ledger.
type PriceLedger interface {
	RecordObservation(ctx context.Context, productID, name string, price float64, source string)
	ReferencePrice(productID string) (float64, bool)
	HistoricalMinimum(productID string) (float64, bool)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces identifiers for cycles and requests.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests used to derive product identities.
type Hasher interface {
	Hash(data []byte) (string, error)
}
