// Package alert renders classified products into chat-ready alert messages.
package alert

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/JakeFAU/price-error-watch/internal/catalog"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

// MaxNameLength bounds the displayed product name, in runes.
const MaxNameLength = 80

// Tier is the urgency bucket of an alert.
type Tier string

// Urgency tiers, highest first.
const (
	TierExtreme  Tier = "extreme"
	TierSevere   Tier = "severe"
	TierStandard Tier = "standard"
)

const divider = "━━━━━━━━━━━━━━━━━━━━━━"

// Urgency buckets a discount percentage.
func Urgency(discountPercent float64) Tier {
	switch {
	case discountPercent >= 70:
		return TierExtreme
	case discountPercent >= 55:
		return TierSevere
	default:
		return TierStandard
	}
}

// Label is the headline shown for the tier.
func (t Tier) Label() string {
	switch t {
	case TierExtreme:
		return "🔴🔴🔴 EXTREME PRICE ERROR"
	case TierSevere:
		return "🔴🔴 SEVERE PRICE ERROR"
	default:
		return "🔴 PRICE ERROR"
	}
}

// Format renders one alert using Telegram's HTML dialect.
//
// The original price line is only present when the store reported an original
// price above the current one.
func Format(p monitor.Product, c catalog.Category, reason monitor.Reason, discountPercent float64) string {
	var b strings.Builder

	header := Urgency(discountPercent).Label()
	if c.Glyph != "" {
		header += " " + c.Glyph
	}
	b.WriteString(header + "\n")
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(truncate(p.Name, MaxNameLength)))

	if p.OriginalPrice > p.Price {
		fmt.Fprintf(&b, "💰 <b>WAS:</b> <s>%s</s>\n", BRL(p.OriginalPrice))
	}
	fmt.Fprintf(&b, "✅ <b>NOW:</b> <b>%s</b> (%s%% OFF)\n", BRL(p.Price), decimal.NewFromFloat(discountPercent).StringFixed(0))
	if reason != monitor.ReasonNone {
		fmt.Fprintf(&b, "🔎 <b>Signal:</b> %s\n", html.EscapeString(string(reason)))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "🏪 <b>Store:</b> %s\n", html.EscapeString(p.Source))
	fmt.Fprintf(&b, "📦 <b>Category:</b> %s\n\n", html.EscapeString(c.DisplayName))

	link := p.URL
	if link == "" {
		link = "#"
	}
	fmt.Fprintf(&b, "🛒 <a href=\"%s\"><b>⚡ BUY NOW</b></a>\n", html.EscapeString(link))
	b.WriteString(divider + "\n")
	b.WriteString("⚠️ <i>Price errors can be corrected at any moment.</i>")
	return b.String()
}

// BRL formats v as Brazilian reais, e.g. 1299.9 -> "R$ 1.299,90".
func BRL(v float64) string {
	fixed := decimal.NewFromFloat(v).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")
	return "R$ " + sign + group(intPart) + "," + frac
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
