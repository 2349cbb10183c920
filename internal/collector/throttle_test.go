package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottledUnlimitedPassesThrough(t *testing.T) {
	t.Parallel()

	inner := &flakyCollector{}
	c := NewThrottled(inner, 0, 0)
	require.Equal(t, "flaky", c.Name())

	for range 5 {
		products, err := c.Fetch(context.Background(), "iphone", 100)
		require.NoError(t, err)
		require.Len(t, products, 1)
	}
	require.Equal(t, 5, inner.calls)
}

func TestThrottledHonorsCancel(t *testing.T) {
	t.Parallel()

	inner := &flakyCollector{}
	c := NewThrottled(inner, 0.001, 1)

	_, err := c.Fetch(context.Background(), "iphone", 100)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Fetch(ctx, "iphone", 100)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit wait")
	require.Equal(t, 1, inner.calls)
}
