// Package mercadolivre collects listings from the Mercado Livre public search API.
package mercadolivre

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/collector"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Name is the collector name used in logs and metrics.
const Name = "mercadolivre"

// Source is the human-facing store label.
const Source = "Mercado Livre"

// DefaultBaseURL is the public MLB search endpoint.
const DefaultBaseURL = "https://api.mercadolibre.com/sites/MLB/search"

const pageSize = 20

// Config controls the collector.
type Config struct {
	BaseURL string
	HTTP    collector.HTTPConfig
}

// Collector implements monitor.Collector.
type Collector struct {
	baseURL string
	base    *colly.Collector
	agents  *collector.UserAgents
	hasher  monitor.Hasher
	logger  *zap.Logger
}

// New builds a Collector.
func New(cfg Config, hasher monitor.Hasher, logger *zap.Logger) *Collector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		baseURL: cfg.BaseURL,
		base:    collector.NewColly(cfg.HTTP),
		agents:  collector.NewUserAgents(cfg.HTTP.UserAgents),
		hasher:  hasher,
		logger:  logger,
	}
}

// Name implements monitor.Collector.
func (c *Collector) Name() string { return Name }

type searchResponse struct {
	Results []item `json:"results"`
}

type item struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Price         float64     `json:"price"`
	OriginalPrice *float64    `json:"original_price"`
	Permalink     string      `json:"permalink"`
	Attributes    []attribute `json:"attributes"`
}

type attribute struct {
	ID          string `json:"id"`
	ValueStruct *struct {
		Number float64 `json:"number"`
	} `json:"value_struct"`
}

// Fetch searches keyword sorted by ascending price, new items only, up to maxPrice.
func (c *Collector) Fetch(ctx context.Context, keyword string, maxPrice float64) ([]monitor.Product, error) {
	var (
		body     []byte
		products []monitor.Product
	)
	col := c.base.Clone()
	col.UserAgent = c.agents.Next()
	col.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	headers := http.Header{"Accept": {"application/json"}}
	if err := collector.Visit(ctx, col, Name, c.searchURL(keyword, maxPrice), headers); err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", Name, err)
	}
	for _, it := range resp.Results {
		if !collector.Keep(it.Title, it.Price, maxPrice) {
			continue
		}
		id, err := collector.ProductID(c.hasher, "ml", it.ID, it.Price)
		if err != nil {
			c.logger.Debug("skipping item", zap.String("listing", it.ID), zap.Error(err))
			continue
		}
		link := it.Permalink
		if link == "" {
			link = "#"
		}
		products = append(products, monitor.Product{
			ID:            id,
			Name:          it.Title,
			Price:         it.Price,
			OriginalPrice: originalPrice(it),
			Source:        Source,
			URL:           link,
			Keyword:       keyword,
		})
	}
	return products, nil
}

func (c *Collector) searchURL(keyword string, maxPrice float64) string {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("condition", "new")
	q.Set("sort", "price_asc")
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("price", "0-"+strconv.FormatFloat(maxPrice, 'f', -1, 64))
	return c.baseURL + "?" + q.Encode()
}

// originalPrice prefers the explicit original_price field and falls back to the
// ORIGINAL_PRICE attribute. Values not above the current price are dropped.
func originalPrice(it item) float64 {
	var orig float64
	for _, attr := range it.Attributes {
		if attr.ID == "ORIGINAL_PRICE" && attr.ValueStruct != nil {
			orig = attr.ValueStruct.Number
		}
	}
	if it.OriginalPrice != nil && *it.OriginalPrice > it.Price {
		orig = *it.OriginalPrice
	}
	if orig <= it.Price {
		return 0
	}
	return orig
}
