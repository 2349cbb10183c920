package alert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/price-error-watch/internal/catalog"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

func TestUrgency(t *testing.T) {
	t.Parallel()

	cases := map[float64]Tier{
		0:     TierStandard,
		54.99: TierStandard,
		55:    TierSevere,
		69.99: TierSevere,
		70:    TierExtreme,
		100:   TierExtreme,
	}
	for discount, want := range cases {
		assert.Equal(t, want, Urgency(discount), "discount %v", discount)
	}
}

func TestBRL(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0:          "R$ 0,00",
		9.5:        "R$ 9,50",
		999.99:     "R$ 999,99",
		1000:       "R$ 1.000,00",
		1299.99:    "R$ 1.299,99",
		123456.7:   "R$ 123.456,70",
		1234567.89: "R$ 1.234.567,89",
	}
	for v, want := range cases {
		assert.Equal(t, want, BRL(v))
	}
}

func TestFormatIncludesFields(t *testing.T) {
	t.Parallel()

	p := monitor.Product{
		Name:          "iPhone 14 128GB",
		Price:         1000,
		OriginalPrice: 3000,
		Source:        "Mercado Livre",
		URL:           "https://example.com/item?a=1&b=2",
	}
	c := catalog.Category{Key: "iphone", DisplayName: "iPhone", Glyph: "📱"}

	msg := Format(p, c, monitor.ReasonStoreDiscount, 66.67)

	require.True(t, strings.HasPrefix(msg, TierSevere.Label()+" 📱\n"))
	require.Contains(t, msg, "<b>iPhone 14 128GB</b>")
	require.Contains(t, msg, "<s>R$ 3.000,00</s>")
	require.Contains(t, msg, "<b>R$ 1.000,00</b> (67% OFF)")
	require.Contains(t, msg, "store discount")
	require.Contains(t, msg, "Mercado Livre")
	require.Contains(t, msg, "<b>Category:</b> iPhone")
	require.Contains(t, msg, `href="https://example.com/item?a=1&amp;b=2"`)
}

func TestFormatOmitsOriginalWhenNotHigher(t *testing.T) {
	t.Parallel()

	p := monitor.Product{Name: "Garmin", Price: 500, Source: "Amazon"}
	msg := Format(p, catalog.Category{DisplayName: "Garmin"}, monitor.ReasonBelowFloor, 16.67)

	require.NotContains(t, msg, "<s>")
	require.True(t, strings.HasPrefix(msg, TierStandard.Label()+"\n"))
	require.Contains(t, msg, `href="#"`)
}

func TestFormatTruncatesAndEscapesName(t *testing.T) {
	t.Parallel()

	name := strings.Repeat("é", MaxNameLength) + "<tail>"
	msg := Format(monitor.Product{Name: name, Price: 1}, catalog.Category{}, monitor.ReasonNone, 80)

	require.Contains(t, msg, "<b>"+strings.Repeat("é", MaxNameLength)+"</b>")
	require.NotContains(t, msg, "tail")
	require.True(t, strings.HasPrefix(msg, TierExtreme.Label()))
}

func TestFormatEscapesMarkup(t *testing.T) {
	t.Parallel()

	msg := Format(monitor.Product{Name: "A <b>&</b>", Price: 1}, catalog.Category{}, monitor.ReasonNone, 50)
	require.Contains(t, msg, "A &lt;b&gt;&amp;&lt;/b&gt;")
}
