// Package casasbahia collects listings from the Casas Bahia storefront search API.
//
// The API is undocumented and its payload shape varies between deployments, so
// products and prices are read from several candidate fields.
package casasbahia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/collector"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Name is the collector name used in logs and metrics.
const Name = "casasbahia"

// Source is the human-facing store label.
const Source = "Casas Bahia"

// DefaultBaseURL is the storefront search endpoint.
const DefaultBaseURL = "https://www.casasbahia.com.br/api/bff/search/v1/search"

const (
	storefront = "https://www.casasbahia.com.br/"
	maxResults = 15
)

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

type object = map[string]any

// Fetch searches keyword sorted by ascending price.
func (c *Collector) Fetch(ctx context.Context, keyword string, maxPrice float64) ([]monitor.Product, error) {
	var body []byte
	col := c.base.Clone()
	col.UserAgent = c.agents.Next()
	col.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	headers := http.Header{
		"Accept":          {"application/json"},
		"Accept-Language": {"pt-BR,pt;q=0.9"},
		"Referer":         {storefront},
		"Origin":          {strings.TrimSuffix(storefront, "/")},
		"App-Id":          {"casasbahia"},
	}
	if err := collector.Visit(ctx, col, Name, c.searchURL(keyword), headers); err != nil {
		return nil, err
	}

	var payload object
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", Name, err)
	}
	items := results(payload)
	if len(items) > maxResults {
		items = items[:maxResults]
	}

	var products []monitor.Product
	for _, raw := range items {
		it, ok := raw.(object)
		if !ok {
			continue
		}
		p, ok := c.product(it, keyword, maxPrice)
		if ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (c *Collector) searchURL(keyword string) string {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("page", "1")
	q.Set("size", "20")
	q.Set("sortBy", "price")
	q.Set("sortOrder", "asc")
	return c.baseURL + "?" + q.Encode()
}

func (c *Collector) product(it object, keyword string, maxPrice float64) (monitor.Product, bool) {
	name := firstString(it, "name", "title", "productName")
	price := firstPrice(it, "bestPrice", "salePrice", "price")
	if price == 0 {
		price = installmentTotal(it)
	}
	if !collector.Keep(name, price, maxPrice) {
		return monitor.Product{}, false
	}

	original := firstPrice(it, "originalPrice", "listPrice", "regularPrice")
	if original <= price {
		original = 0
	}

	listing := fmt.Sprint(it["id"])
	link := firstString(it, "slug", "url")
	if link == "" {
		link = listing
	}
	if !strings.HasPrefix(link, "http") {
		link = storefront + strings.TrimPrefix(link, "/")
	}

	id, err := collector.ProductID(c.hasher, "cb", listing, price)
	if err != nil {
		c.logger.Debug("skipping item", zap.String("listing", listing), zap.Error(err))
		return monitor.Product{}, false
	}
	return monitor.Product{
		ID:            id,
		Name:          name,
		Price:         price,
		OriginalPrice: original,
		Source:        Source,
		URL:           link,
		Keyword:       keyword,
	}, true
}

func results(payload object) []any {
	if data, ok := payload["data"].(object); ok {
		if list, ok := data["products"].([]any); ok && len(list) > 0 {
			return list
		}
	}
	for _, key := range []string{"products", "results"} {
		if list, ok := payload[key].([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

// priceBlocks are the nested objects that may carry prices, in lookup order.
var priceBlocks = []string{"priceInfo", "price", "offers"}

// firstPrice looks for keys inside the price blocks first, then on the item.
func firstPrice(it object, keys ...string) float64 {
	for _, block := range priceBlocks {
		b, ok := it[block].(object)
		if !ok {
			continue
		}
		for _, key := range keys {
			if v, ok := b[key].(float64); ok && v > 0 {
				return v
			}
		}
	}
	for _, key := range keys {
		if v, ok := it[key].(float64); ok && v > 0 {
			return v
		}
	}
	return 0
}

func installmentTotal(it object) float64 {
	for _, block := range priceBlocks {
		b, ok := it[block].(object)
		if !ok {
			continue
		}
		value, _ := b["minInstallmentValue"].(float64)
		count, ok := b["installmentCount"].(float64)
		if !ok {
			count = 1
		}
		if value > 0 {
			return value * count
		}
	}
	return 0
}

func firstString(it object, keys ...string) string {
	for _, key := range keys {
		if s, ok := it[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
