// Package file_test tests the local file ledger store.
package file_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/price-error-watch/internal/ledger"
	"github.com/JakeFAU/price-error-watch/internal/ledger/file"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := file.New(file.Config{Path: filepath.Join(t.TempDir(), "nested", "ledger.json")})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("MissingPath", func(t *testing.T) {
		_, err := file.New(file.Config{})
		assert.Error(t, err)
	})
	t.Run("PathIsDirectory", func(t *testing.T) {
		_, err := file.New(file.Config{Path: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "price_history.json")
	store, err := file.New(file.Config{Path: path})
	require.NoError(t, err)

	_, err = store.Load(ctx)
	require.True(t, errors.Is(err, ledger.ErrNotFound))

	ts := time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)
	snap := ledger.Snapshot{
		"abc": {
			Name: "Dior Sauvage 100ml",
			History: []monitor.PriceHistoryEntry{
				{Price: 499.9, Source: "Amazon Brasil", Timestamp: ts},
				{Price: 120, Source: "Mercado Livre", Timestamp: ts.Add(time.Hour)},
			},
		},
	}
	require.NoError(t, store.Save(ctx, snap, "abc"))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap, loaded)
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "price_history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := file.New(file.Config{Path: path})
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, ledger.ErrNotFound))
}

func TestLedgerOverCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "price_history.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	store, err := file.New(file.Config{Path: path})
	require.NoError(t, err)

	ctx := context.Background()
	l := ledger.Open(ctx, store, nil, ledger.Config{}, nil)
	require.Equal(t, 0, l.Len())

	l.RecordObservation(ctx, "id", "Polo Lacoste", 89.9, "Amazon Brasil")

	reopened := ledger.Open(ctx, store, nil, ledger.Config{}, nil)
	ref, ok := reopened.ReferencePrice("id")
	require.True(t, ok)
	require.Equal(t, 89.9, ref)
}
