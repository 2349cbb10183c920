package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPreservesOrder(t *testing.T) {
	t.Parallel()

	r, err := New(
		Category{Key: "b", Keywords: []string{"x"}},
		Category{Key: "a", Keywords: []string{"y"}},
	)
	require.NoError(t, err)

	all := r.All()
	require.Len(t, all, 2)
	require.Equal(t, "b", all[0].Key)
	require.Equal(t, "a", all[1].Key)
}

func TestNewRejectsInvalidCategories(t *testing.T) {
	t.Parallel()

	_, err := New(Category{Key: ""})
	require.Error(t, err)

	_, err = New(Category{Key: "a"}, Category{Key: "a"})
	require.ErrorContains(t, err, "duplicate")

	_, err = New(Category{Key: "a", AbsoluteFloorPrice: -1})
	require.Error(t, err)
}

func TestRegistryReturnsCopies(t *testing.T) {
	t.Parallel()

	r, err := New(Category{Key: "a", Keywords: []string{"one"}})
	require.NoError(t, err)

	c, ok := r.Get("a")
	require.True(t, ok)
	c.Keywords[0] = "mutated"

	again, _ := r.Get("a")
	require.Equal(t, "one", again.Keywords[0])

	_, ok = r.Get("missing")
	require.False(t, ok)
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	r := Default(map[string]float64{"iphone": 4500, "unknown": 1})
	require.Equal(t, 7, r.Len())

	iphone, ok := r.Get("iphone")
	require.True(t, ok)
	require.Equal(t, 4500.0, iphone.MaxPrice)
	require.Equal(t, 1800.0, iphone.AbsoluteFloorPrice)
	require.Equal(t, "iphone 15 pro max", iphone.Keywords[0])

	roupa, ok := r.Get("roupa")
	require.True(t, ok)
	require.Equal(t, 500.0, roupa.MaxPrice)
	require.Equal(t, 35.0, roupa.AbsoluteFloorPrice)

	keys := make([]string, 0, r.Len())
	for _, c := range r.All() {
		keys = append(keys, c.Key)
	}
	require.Equal(t, []string{"iphone", "applewatch", "garmin", "perfume", "maquiagem", "polo", "roupa"}, keys)
}
