package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tibiamarket/tracker/internal/database"
	"github.com/tibiamarket/tracker/internal/models"
)

func newTestQuoteStore(t *testing.T) *QuoteStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewQuoteStore(db)
}

func quoteAt(name string, sell int, at time.Time) models.MarketQuote {
	return models.NewMarketQuote(name, models.MarketReadings{
		SellOffer: models.Readable(sell), BuyOffer: models.Readable(100),
		HighestSell: models.Missing(), LowestBuy: models.Readable(0),
		Sold: models.Readable(0), Bought: models.Readable(1),
	}, at)
}

func TestQuoteStoreHistory(t *testing.T) {
	store := newTestQuoteStore(t)
	now := time.Now()

	require.NoError(t, store.RecordQuote("scan-1", quoteAt("Sword", 150, now.AddDate(0, -2, 0))))
	require.NoError(t, store.RecordQuote("scan-2", quoteAt("Sword", 160, now.AddDate(0, 0, -3))))
	require.NoError(t, store.RecordQuote("scan-3", quoteAt("Sword", 170, now.Add(-time.Hour))))
	require.NoError(t, store.RecordQuote("scan-3", quoteAt("Shield", 90, now.Add(-time.Hour))))

	month, err := store.GetHistory("SWORD", "month")
	require.NoError(t, err)
	require.Len(t, month, 2)
	assert.Equal(t, 160, month[0].SellOffer, "oldest first")
	assert.Equal(t, 170, month[1].SellOffer)

	all, err := store.GetHistory("sword", "all")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.GetHistory("crown armor", "all")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQuoteStoreRecordQuoteUpserts(t *testing.T) {
	store := newTestQuoteStore(t)
	at := time.Now()

	require.NoError(t, store.RecordQuote("scan-1", quoteAt("sword", 150, at)))
	require.NoError(t, store.RecordQuote("scan-1", quoteAt("sword", 175, at)))

	records, err := store.GetHistory("sword", "all")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 175, records[0].SellOffer)
}

func TestQuoteStoreRuns(t *testing.T) {
	store := newTestQuoteStore(t)

	last, err := store.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)

	older := &models.ScanRun{ID: "a", StartedAt: time.Now().Add(-2 * time.Hour), Status: models.ScanRunning}
	newer := &models.ScanRun{ID: "b", StartedAt: time.Now().Add(-time.Hour), Status: models.ScanRunning}
	require.NoError(t, store.StartRun(older))
	require.NoError(t, store.StartRun(newer))

	finished := time.Now()
	newer.Status = models.ScanCompleted
	newer.FinishedAt = &finished
	newer.Items = 42
	require.NoError(t, store.FinishRun(newer))

	n, err := store.FailInterruptedRuns()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)
	assert.Equal(t, 42, runs[0].Items)
	assert.Equal(t, models.ScanFailed, runs[1].Status)
	assert.Equal(t, "interrupted", runs[1].Error)

	last, err = store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.ID)
}

func TestNormalizePeriod(t *testing.T) {
	assert.Equal(t, "week", NormalizePeriod("week"))
	assert.Equal(t, "all", NormalizePeriod("all"))
	assert.Equal(t, "month", NormalizePeriod("decade"))
	assert.Equal(t, "month", NormalizePeriod(""))
}
