// Package detector classifies product observations as price errors.
//
// Three independent signals are evaluated in priority order and the first match
// wins: the store's own strike-through discount, the category's absolute price
// floor, and the drop against the product's historical median price.
package detector

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/catalog"
	"github.com/JakeFAU/price-error-watch/internal/metrics"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Default thresholds, in percent.
const (
	DefaultMinDiscountPercent    = 40
	DefaultHistoricalDropPercent = 40
)

// Config controls the detection thresholds.
type Config struct {
	MinDiscountPercent    float64
	HistoricalDropPercent float64
}

// Detector evaluates observations against the ledger and category floors.
type Detector struct {
	ledger   monitor.PriceLedger
	registry *catalog.Registry
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Detector. Zero thresholds fall back to the defaults.
func New(ledger monitor.PriceLedger, registry *catalog.Registry, cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDiscountPercent <= 0 {
		cfg.MinDiscountPercent = DefaultMinDiscountPercent
	}
	if cfg.HistoricalDropPercent <= 0 {
		cfg.HistoricalDropPercent = DefaultHistoricalDropPercent
	}
	return &Detector{
		ledger:   ledger,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Classify records the observation in the ledger and then evaluates the layers.
//
// The observation is recorded before the reference price is read, so the median
// used by the historical layer already includes the current price.
func (d *Detector) Classify(ctx context.Context, p monitor.Product, categoryKey string) monitor.Classification {
	if p.Price <= 0 {
		return monitor.Classification{}
	}
	if d.ledger != nil {
		d.ledger.RecordObservation(ctx, p.ID, p.Name, p.Price, p.Source)
	}

	result := d.evaluate(p, categoryKey)
	metrics.ObserveClassification(string(result.Reason))
	return result
}

func (d *Detector) evaluate(p monitor.Product, categoryKey string) monitor.Classification {
	if p.OriginalPrice > p.Price {
		discount := percentBelow(p.OriginalPrice, p.Price)
		if discount >= d.cfg.MinDiscountPercent {
			return monitor.Classification{
				IsError:         true,
				Reason:          monitor.ReasonStoreDiscount,
				DiscountPercent: discount,
				Reference:       p.OriginalPrice,
			}
		}
	}

	if floor := d.floor(categoryKey); floor > 0 && p.Price < floor {
		return monitor.Classification{
			IsError:         true,
			Reason:          monitor.ReasonBelowFloor,
			DiscountPercent: percentBelow(floor, p.Price),
			Reference:       floor,
		}
	}

	if d.ledger == nil {
		return monitor.Classification{}
	}
	ref, ok := d.ledger.ReferencePrice(p.ID)
	if !ok || ref <= 0 {
		return monitor.Classification{}
	}
	drop := percentBelow(ref, p.Price)
	if drop < d.cfg.HistoricalDropPercent {
		return monitor.Classification{}
	}
	if low, ok := d.ledger.HistoricalMinimum(p.ID); ok {
		d.logger.Debug("historical drop",
			zap.String("product_id", p.ID),
			zap.Float64("reference", ref),
			zap.Float64("historical_min", low),
			zap.Float64("price", p.Price),
		)
	}
	return monitor.Classification{
		IsError:         true,
		Reason:          monitor.ReasonHistoricalDrop,
		DiscountPercent: drop,
		Reference:       ref,
	}
}

func (d *Detector) floor(categoryKey string) float64 {
	if d.registry == nil {
		return 0
	}
	c, ok := d.registry.Get(categoryKey)
	if !ok {
		return 0
	}
	return c.AbsoluteFloorPrice
}

func percentBelow(reference, price float64) float64 {
	return (reference - price) / reference * 100
}
