// Package collector holds the shared plumbing for retailer collectors: the colly
// base collector, blocked-response detection, retries, user agent rotation, price
// parsing and product identity.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// ErrBlocked marks anti-bot responses (403, 429, 503). Blocked requests are not retried.
var ErrBlocked = errors.New("request blocked by source")

// DefaultTimeout bounds a single search request.
const DefaultTimeout = 12 * time.Second

// DefaultUserAgents are rotated across requests when none are configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// HTTPConfig is shared by every colly-based collector.
type HTTPConfig struct {
	Timeout    time.Duration
	UserAgents []string
	// Transport overrides the pooled default; tests inject httptest transports here.
	Transport http.RoundTripper
}

// StatusError reports a non-200 search response.
type StatusError struct {
	Source string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Source, e.Code)
}

// Unwrap exposes ErrBlocked for anti-bot status codes.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return ErrBlocked
	default:
		return nil
	}
}

// UserAgents rotates through a fixed list of user agent strings.
type UserAgents struct {
	list []string
	next atomic.Uint64
}

// NewUserAgents returns a rotator over list, or DefaultUserAgents when empty.
func NewUserAgents(list []string) *UserAgents {
	if len(list) == 0 {
		list = DefaultUserAgents
	}
	return &UserAgents{list: append([]string(nil), list...)}
}

// Next returns the next user agent.
func (u *UserAgents) Next() string {
	n := u.next.Add(1) - 1
	return u.list[n%uint64(len(u.list))]
}

// NewColly builds the base collector cloned per request by collectors.
func NewColly(cfg HTTPConfig) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.SetRequestTimeout(timeout)
	return c
}

// Visit runs a cloned collector against url. The request is bound to ctx, so
// canceling ctx aborts it in flight.
//
// Non-200 responses surface as *StatusError. Colly reports them through OnError,
// so callers must not register their own OnError hook.
func Visit(ctx context.Context, c *colly.Collector, source, url string, headers http.Header) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s search canceled: %w", source, err)
	}
	c.Context = ctx

	var fetchErr error
	c.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.StatusCode != http.StatusOK {
			fetchErr = &StatusError{Source: source, Code: r.StatusCode}
			return
		}
		fetchErr = err
	})

	err := c.Visit(url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s search canceled: %w", source, ctxErr)
	}
	if fetchErr != nil {
		return fmt.Errorf("%s search failed: %w", source, fetchErr)
	}
	if err != nil {
		return fmt.Errorf("%s visit failed: %w", source, err)
	}
	return nil
}

// ProductID derives the product identity from its parts. The current price is
// always one of the parts, so a repriced listing is a new product.
func ProductID(h monitor.Hasher, prefix, listing string, price float64) (string, error) {
	key := prefix + "_" + listing + "_" + strconv.FormatFloat(price, 'f', -1, 64)
	id, err := h.Hash([]byte(key))
	if err != nil {
		return "", fmt.Errorf("hash product id: %w", err)
	}
	return id, nil
}

// ParseBRL converts a Brazilian price string such as "R$ 1.299,99" to 1299.99.
// Unparseable input yields 0.
func ParseBRL(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}
	if intPart, frac, ok := strings.Cut(cleaned, ","); ok {
		cleaned = strings.ReplaceAll(intPart, ".", "") + "." + strings.ReplaceAll(frac, ".", "")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// Keep reports whether a parsed listing is usable for maxPrice.
func Keep(name string, price, maxPrice float64) bool {
	if strings.TrimSpace(name) == "" || price <= 0 {
		return false
	}
	return maxPrice <= 0 || price <= maxPrice
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
