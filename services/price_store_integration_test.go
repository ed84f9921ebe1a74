package services

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UlisesFTP/pconstruct-pricing/models"
)

func storeTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping store integration tests")
	}

	db, err := sql.Open("postgres", url)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		t.Skipf("Database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testObservation(componentID int, retailer string, price float64, observedAt time.Time) models.PriceObservation {
	return models.PriceObservation{
		ID:          uuid.New().String(),
		ComponentID: componentID,
		Retailer:    retailer,
		CountryCode: "MX",
		Price:       price,
		Currency:    "MXN",
		Stock:       models.StockInStock,
		URL:         "https://example.mx/product",
		ScrapedName: "Integration test product",
		ObservedAt:  observedAt,
	}
}

func TestPriceStoreInsertAndQuery(t *testing.T) {
	db := storeTestDB(t)
	store := NewPriceStore(db)
	ctx := context.Background()

	// a component id outside any real catalog range keeps runs isolated
	componentID := 900000 + int(time.Now().UnixNano()%100000)

	now := time.Now().Truncate(time.Second)
	batch := []models.PriceObservation{
		testObservation(componentID, "amazon", 2600, now.Add(-time.Hour)),
		testObservation(componentID, "mercadolibre", 2450, now.Add(-2*time.Hour)),
		testObservation(componentID, "amazon", 2700, now.Add(-10*24*time.Hour)),
	}
	require.NoError(t, store.InsertBatch(ctx, batch))

	recent, err := store.RecentObservations(ctx, componentID, "MX", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 2, "observations outside the window are not returned")
	assert.True(t, recent[0].ObservedAt.After(recent[1].ObservedAt) || recent[0].ObservedAt.Equal(recent[1].ObservedAt),
		"newest first ordering")

	history, err := store.History(ctx, componentID, "MX", 30*24*time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, history, 3, "history window wider than the recent window sees every batch")
}

func TestPriceStoreAppendOnlyReplay(t *testing.T) {
	db := storeTestDB(t)
	store := NewPriceStore(db)
	ctx := context.Background()

	componentID := 800000 + int(time.Now().UnixNano()%100000)
	now := time.Now().Truncate(time.Second)

	first := []models.PriceObservation{testObservation(componentID, "amazon", 2499, now)}
	second := []models.PriceObservation{testObservation(componentID, "amazon", 2499, now)}

	require.NoError(t, store.InsertBatch(ctx, first))
	require.NoError(t, store.InsertBatch(ctx, second))

	history, err := store.History(ctx, componentID, "MX", 30*24*time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2, "replaying the same scrape appends, never conflicts")
}

func TestPriceStoreEmptyBatchIsNoOp(t *testing.T) {
	db := storeTestDB(t)
	store := NewPriceStore(db)

	require.NoError(t, store.InsertBatch(context.Background(), nil))
}
