package casasbahia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/price-error-watch/internal/collector"
	"github.com/JakeFAU/price-error-watch/internal/hash/sha256"
)

const nestedBody = `{
  "data": {"products": [
    {"id": 1, "name": "Perfume Importado", "priceInfo": {"bestPrice": 59.9, "originalPrice": 399.9}, "slug": "perfume-importado/p/1"},
    {"id": 2, "title": "Perfume B", "price": {"minInstallmentValue": 20, "installmentCount": 5}, "url": "https://www.casasbahia.com.br/b/p/2"},
    {"id": 3, "productName": "Perfume C", "price": 120, "listPrice": 100},
    {"id": 4, "name": "", "price": 10},
    {"id": 5, "name": "Caro", "price": 5000}
  ]}
}`

func TestFetchNestedPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "perfume", r.URL.Query().Get("q"))
		require.Equal(t, "asc", r.URL.Query().Get("sortOrder"))
		require.Equal(t, "casasbahia", r.Header.Get("App-Id"))
		_, _ = w.Write([]byte(nestedBody))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, sha256.New(), nil)
	products, err := c.Fetch(context.Background(), "perfume", 800)
	require.NoError(t, err)
	require.Len(t, products, 3)

	require.Equal(t, "Perfume Importado", products[0].Name)
	require.Equal(t, 59.9, products[0].Price)
	require.Equal(t, 399.9, products[0].OriginalPrice)
	require.Equal(t, "https://www.casasbahia.com.br/perfume-importado/p/1", products[0].URL)

	require.Equal(t, 100.0, products[1].Price, "installments")
	require.Equal(t, "https://www.casasbahia.com.br/b/p/2", products[1].URL)

	require.Equal(t, 120.0, products[2].Price)
	require.Zero(t, products[2].OriginalPrice)
	require.Equal(t, "https://www.casasbahia.com.br/3", products[2].URL)

	want, err := collector.ProductID(sha256.New(), "cb", "1", 59.9)
	require.NoError(t, err)
	require.Equal(t, want, products[0].ID)
}

func TestFetchTopLevelResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"id": "x", "name": "Polo", "salePrice": 30}]}`))
	}))
	defer srv.Close()

	products, err := New(Config{BaseURL: srv.URL}, sha256.New(), nil).Fetch(context.Background(), "polo", 300)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, 30.0, products[0].Price)
}

func TestFetchRateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}, sha256.New(), nil).Fetch(context.Background(), "k", 10)
	require.ErrorIs(t, err, collector.ErrBlocked)
}
