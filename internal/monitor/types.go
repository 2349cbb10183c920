package monitor

import "time"

// Product is one normalized listing observation returned by a Collector.
//
// ID is computed by the collector from the listing and its current price, so the
// same listing at a different price is a different product.
type Product struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	Source        string  `json:"source"`
	URL           string  `json:"url"`
	CategoryKey   string  `json:"category_key"`
	Keyword       string  `json:"keyword"`
}

// Validate reports why a product cannot be processed, or nil.
func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return errInvalidProduct("missing id")
	case p.Name == "":
		return errInvalidProduct("missing name")
	case p.Price <= 0:
		return errInvalidProduct("non-positive price")
	case p.OriginalPrice < 0:
		return errInvalidProduct("negative original price")
	default:
		return nil
	}
}

// Reason names the detection layer that fired.
type Reason string

// Detection reasons, in evaluation order.
const (
	ReasonNone           Reason = ""
	ReasonStoreDiscount  Reason = "store discount"
	ReasonBelowFloor     Reason = "below absolute market minimum"
	ReasonHistoricalDrop Reason = "historical drop vs reference"
)

// Classification is the detector verdict for one observation.
type Classification struct {
	IsError         bool    `json:"is_error"`
	Reason          Reason  `json:"reason"`
	DiscountPercent float64 `json:"discount_percent"`
	// Reference is the price the discount was computed against: the store's
	// original price, the category floor, or the historical median.
	Reference float64 `json:"reference"`
}

// Status is a read-only snapshot of orchestrator counters.
type Status struct {
	CyclesRun         int    `json:"cycles_run"`
	TotalErrorsFound  int    `json:"total_errors_found"`
	LastScanTimestamp string `json:"last_scan_timestamp"`
	NextScanEstimate  string `json:"next_scan_estimate"`
	SeenProducts      int    `json:"seen_products"`
	Collectors        int    `json:"collectors"`
}

// PriceHistoryEntry is one recorded price observation.
type PriceHistoryEntry struct {
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerRecord is the bounded price history kept for one product id, oldest first.
type LedgerRecord struct {
	Name    string              `json:"name"`
	History []PriceHistoryEntry `json:"history"`
}

// Clone returns a deep copy of the record.
func (r LedgerRecord) Clone() LedgerRecord {
	out := LedgerRecord{Name: r.Name}
	if r.History != nil {
		out.History = make([]PriceHistoryEntry, len(r.History))
		copy(out.History, r.History)
	}
	return out
}
