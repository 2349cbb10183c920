// Package amazon collects listings from Amazon Brasil search result pages.
package amazon

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/price-error-watch/internal/collector"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// Name is the collector name used in logs and metrics.
const Name = "amazon"

// Source is the human-facing store label.
const Source = "Amazon Brasil"

// DefaultBaseURL is the search page.
const DefaultBaseURL = "https://www.amazon.com.br/s"

// maxResults is how many search result slots are inspected per keyword.
const maxResults = 10

const (
	resultSelector        = `[data-component-type="s-search-result"]`
	nameSelector          = "h2 a span"
	linkSelector          = "h2 a"
	priceSelector         = ".a-price:not(.a-text-price) .a-offscreen"
	originalPriceSelector = ".a-price.a-text-price .a-offscreen"
)

// Config controls the collector.
type Config struct {
	BaseURL string
	HTTP    collector.HTTPConfig
}

// Collector implements monitor.Collector.
type Collector struct {
	baseURL *url.URL
	base    *colly.Collector
	agents  *collector.UserAgents
	hasher  monitor.Hasher
	logger  *zap.Logger
}

// New builds a Collector.
func New(cfg Config, hasher monitor.Hasher, logger *zap.Logger) (*Collector, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid amazon base url %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		baseURL: base,
		base:    collector.NewColly(cfg.HTTP),
		agents:  collector.NewUserAgents(cfg.HTTP.UserAgents),
		hasher:  hasher,
		logger:  logger,
	}, nil
}

// Name implements monitor.Collector.
func (c *Collector) Name() string { return Name }

// Fetch searches keyword sorted by ascending price and filtered to maxPrice.
func (c *Collector) Fetch(ctx context.Context, keyword string, maxPrice float64) ([]monitor.Product, error) {
	var body []byte
	col := c.base.Clone()
	col.UserAgent = c.agents.Next()
	col.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	headers := http.Header{
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"pt-BR,pt;q=0.9,en;q=0.8"},
		"Dnt":             {"1"},
	}
	if err := collector.Visit(ctx, col, Name, c.searchURL(keyword, maxPrice), headers); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", Name, err)
	}
	return c.parse(doc.Selection, keyword, maxPrice), nil
}

func (c *Collector) searchURL(keyword string, maxPrice float64) string {
	q := url.Values{}
	q.Set("k", keyword)
	// Amazon filters prices in cents.
	q.Set("rh", "p_36:0-"+strconv.FormatInt(int64(maxPrice*100), 10))
	q.Set("s", "price-asc-rank")
	q.Set("language", "pt_BR")
	u := *c.baseURL
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Collector) parse(doc *goquery.Selection, keyword string, maxPrice float64) []monitor.Product {
	var products []monitor.Product
	results := doc.Find(resultSelector)
	if results.Length() > maxResults {
		results = results.Slice(0, maxResults)
	}
	results.Each(func(_ int, s *goquery.Selection) {
		p, ok := c.parseResult(s, keyword, maxPrice)
		if ok {
			products = append(products, p)
		}
	})
	return products
}

func (c *Collector) parseResult(s *goquery.Selection, keyword string, maxPrice float64) (monitor.Product, bool) {
	name := strings.TrimSpace(s.Find(nameSelector).First().Text())
	price := collector.ParseBRL(s.Find(priceSelector).First().Text())
	if !collector.Keep(name, price, maxPrice) {
		return monitor.Product{}, false
	}

	var original float64
	if text := s.Find(originalPriceSelector).First().Text(); text != "" {
		if v := collector.ParseBRL(text); v > price {
			original = v
		}
	}

	link := "#"
	if href, ok := s.Find(linkSelector).First().Attr("href"); ok && href != "" {
		link = c.resolve(href)
	}

	id, err := collector.ProductID(c.hasher, "amz", link, price)
	if err != nil {
		c.logger.Debug("skipping result", zap.String("link", link), zap.Error(err))
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

func (c *Collector) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.baseURL.ResolveReference(ref).String()
}
