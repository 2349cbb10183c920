package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/price-error-watch/internal/ledger"
	"github.com/JakeFAU/price-error-watch/internal/monitor"
)

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "bad-name;")
	require.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "price_history", store.table)

	_, err = NewWithPool(nil, "x")
	require.Error(t, err)
}

func TestSaveUpsertsChangedRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "price_history")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := monitor.LedgerRecord{
		Name: "iPhone 15",
		History: []monitor.PriceHistoryEntry{
			{Price: 5000, Source: "Amazon Brasil", Timestamp: now.Add(-time.Hour)},
			{Price: 1500, Source: "Amazon Brasil", Timestamp: now},
		},
	}
	historyJSON, err := json.Marshal(rec.History)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO price_history").
		WithArgs("prod-1", "iPhone 15", historyJSON, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	snap := ledger.Snapshot{"prod-1": rec, "other": {Name: "ignored"}}
	require.NoError(t, store.Save(context.Background(), snap, "prod-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUnknownRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.Save(context.Background(), ledger.Snapshot{}, "missing"))
}

func TestLoadReadsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "price_history")
	require.NoError(t, err)

	ts := time.Unix(1700000000, 0).UTC()
	history := []monitor.PriceHistoryEntry{{Price: 79.9, Source: "Mercado Livre", Timestamp: ts}}
	raw, err := json.Marshal(history)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT product_id, name, history FROM price_history").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "name", "history"}).
			AddRow("prod-9", "Polo Reserva", raw))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, ledger.Snapshot{"prod-9": {Name: "Polo Reserva", History: history}}, snap)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadEmptyTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "price_history")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT product_id").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "name", "history"}))

	_, err = store.Load(context.Background())
	require.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestLoadQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "price_history")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT product_id").WillReturnError(errors.New("connection refused"))

	_, err = store.Load(context.Background())
	require.ErrorContains(t, err, "query ledger")
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "price_history")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS price_history").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
