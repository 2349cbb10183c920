// Package ledger keeps the bounded per-product price history that backs the
// detector's historical-drop signal.
//
// The ledger holds the full snapshot in memory and persists it through a Store
// after every observation. Persistence is best effort: an unreadable store yields
// an empty ledger and a failed write is logged, never returned.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/metrics"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// DefaultHistoryLimit is the number of observations retained per product.
const DefaultHistoryLimit = 60

// ErrNotFound is returned by stores that hold no snapshot yet.
var ErrNotFound = errors.New("ledger snapshot not found")

// Snapshot maps product ids to their records.
type Snapshot map[string]monitor.LedgerRecord

// Store persists ledger snapshots.
//
// Save receives the live snapshot and the id of the record that triggered the
// write. Whole-snapshot stores rewrite everything; keyed stores may persist only
// the changed record. Implementations must not retain snap after returning.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot, changedID string) error
}

// Config controls Ledger behavior.
type Config struct {
	HistoryLimit int
}

// Ledger is the in-memory price history with synchronous persistence.
//
// The lock only guards readers such as the HTTP API; concurrent writers are not a
// supported pattern, the single active cycle is the only writer.
type Ledger struct {
	mu      sync.RWMutex
	store   Store
	clock   monitor.Clock
	limit   int
	records Snapshot
	logger  *zap.Logger
}

// Open loads the snapshot from store and returns a ready Ledger. Load failures are
// logged and produce an empty ledger.
func Open(ctx context.Context, store Store, clock monitor.Clock, cfg Config, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	l := &Ledger{
		store:   store,
		clock:   clock,
		limit:   cfg.HistoryLimit,
		records: Snapshot{},
		logger:  logger,
	}
	if store == nil {
		return l
	}
	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info("ledger snapshot not found; starting empty")
	case err != nil:
		logger.Warn("ledger unreadable; starting empty", zap.Error(err))
	default:
		l.records = sanitize(snap, l.limit)
		logger.Info("ledger loaded", zap.Int("products", len(l.records)))
	}
	return l
}

// RecordObservation appends an observation for productID, keeps the most recent
// HistoryLimit entries and persists the ledger.
func (l *Ledger) RecordObservation(ctx context.Context, productID, name string, price float64, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[productID]
	if !ok {
		rec = monitor.LedgerRecord{Name: name}
	}
	rec.History = append(rec.History, monitor.PriceHistoryEntry{
		Price:     price,
		Source:    source,
		Timestamp: l.now(),
	})
	if over := len(rec.History) - l.limit; over > 0 {
		rec.History = append([]monitor.PriceHistoryEntry(nil), rec.History[over:]...)
	}
	l.records[productID] = rec

	if l.store == nil {
		return
	}
	if err := l.store.Save(ctx, l.records, productID); err != nil {
		metrics.ObserveLedgerWriteFailure()
		l.logger.Error("ledger save failed", zap.String("product_id", productID), zap.Error(err))
	}
}

// ReferencePrice returns the median of all recorded prices for productID.
func (l *Ledger) ReferencePrice(productID string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[productID]
	if !ok || len(rec.History) == 0 {
		return 0, false
	}
	return median(prices(rec.History)), true
}

// HistoricalMinimum returns the lowest recorded price for productID.
func (l *Ledger) HistoricalMinimum(productID string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[productID]
	if !ok || len(rec.History) == 0 {
		return 0, false
	}
	lowest := rec.History[0].Price
	for _, h := range rec.History[1:] {
		if h.Price < lowest {
			lowest = h.Price
		}
	}
	return lowest, true
}

// History returns a copy of the record for productID.
func (l *Ledger) History(productID string) (monitor.LedgerRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[productID]
	if !ok {
		return monitor.LedgerRecord{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of products with recorded history.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Ledger) now() time.Time {
	if l.clock == nil {
		return time.Now().UTC()
	}
	return l.clock.Now()
}

func prices(history []monitor.PriceHistoryEntry) []float64 {
	out := make([]float64, len(history))
	for i, h := range history {
		out[i] = h.Price
	}
	return out
}

// median sorts values in place. Even counts average the two middle values.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// sanitize drops empty records and trims over-long histories from a loaded snapshot.
func sanitize(snap Snapshot, limit int) Snapshot {
	out := make(Snapshot, len(snap))
	for id, rec := range snap {
		if len(rec.History) == 0 {
			continue
		}
		if over := len(rec.History) - limit; over > 0 {
			rec.History = rec.History[over:]
		}
		out[id] = rec.Clone()
	}
	return out
}
