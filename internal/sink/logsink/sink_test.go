package logsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDeliverLogsEachAlert(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	s := New(zap.New(core))

	require.NoError(t, s.Deliver(context.Background(), []string{"first", "second"}))

	entries := logs.FilterMessage("price alert").All()
	require.Len(t, entries, 2)
	require.Equal(t, "first", entries[0].ContextMap()["alert"])
	require.Equal(t, int64(1), entries[1].ContextMap()["index"])
}
