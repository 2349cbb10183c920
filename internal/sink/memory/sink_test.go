package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSinkStoresBatches(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Deliver(context.Background(), []string{"a", "b"}))
	require.NoError(t, s.Deliver(context.Background(), nil))
	require.NoError(t, s.Deliver(context.Background(), []string{"c"}))

	require.Equal(t, [][]string{{"a", "b"}, {}, {"c"}}, s.Batches())
	require.Equal(t, []string{"a", "b", "c"}, s.Alerts())

	batches := s.Batches()
	batches[0][0] = "modified"
	require.Equal(t, "a", s.Batches()[0][0], "Batches returns copies")
}
