package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

type fakeCache struct {
	entries map[string]*models.BestPriceSummary
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*models.BestPriceSummary{}}
}

func (f *fakeCache) Get(_ context.Context, componentID int, countryCode string) (*models.BestPriceSummary, bool) {
	summary, ok := f.entries[priceCacheKey(countryCode, componentID)]
	if !ok {
		return nil, false
	}
	copied := *summary
	return &copied, true
}

func (f *fakeCache) Set(_ context.Context, summary *models.BestPriceSummary, countryCode string) {
	f.sets++
	copied := *summary
	f.entries[priceCacheKey(countryCode, summary.ComponentID)] = &copied
}

type fakeStore struct {
	observations []models.PriceObservation
	inserted     [][]models.PriceObservation
	queryErr     error
}

func (f *fakeStore) RecentObservations(_ context.Context, componentID int, countryCode string, _ time.Duration) ([]models.PriceObservation, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []models.PriceObservation
	for _, obs := range f.observations {
		if obs.ComponentID == componentID && obs.CountryCode == countryCode {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertBatch(_ context.Context, observations []models.PriceObservation) error {
	f.inserted = append(f.inserted, observations)
	f.observations = append(f.observations, observations...)
	return nil
}

type fakeDispatcher struct {
	jobs []*models.RefreshJob
}

func (f *fakeDispatcher) DispatchAsync(job *models.RefreshJob) {
	f.jobs = append(f.jobs, job)
}

type fakeFetcher struct {
	results map[string][]models.RawObservation
	calls   int
}

func (f *fakeFetcher) FetchAll(_ context.Context, _ string, _ []string) map[string][]models.RawObservation {
	f.calls++
	return f.results
}

type fakeCatalog struct {
	names      map[int]string
	components []models.Component
	err        error
}

func (f *fakeCatalog) ComponentName(_ context.Context, componentID int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	name, ok := f.names[componentID]
	if !ok {
		return "", errors.New("component not found")
	}
	return name, nil
}

func (f *fakeCatalog) Components(_ context.Context, _ map[string]string) ([]models.Component, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.components, nil
}

type fakeCapacity struct{ available int }

func (f *fakeCapacity) Available() int { return f.available }

func newTestAssembler(cache *fakeCache, store *fakeStore, dispatcher *fakeDispatcher, fetcher *fakeFetcher, catalog *fakeCatalog, capacity *fakeCapacity) *PriceAssembler {
	selector := NewBestPriceSelector([]string{"amazon", "mercadolibre", "cyberpuerta"}, 24*time.Hour)
	return NewPriceAssembler(cache, store, dispatcher, fetcher, catalog, selector, capacity,
		7*24*time.Hour, 2*time.Second)
}

func TestLookupServesFreshCacheHit(t *testing.T) {
	cache := newFakeCache()
	cache.entries["price:MX:42"] = &models.BestPriceSummary{
		ComponentID: 42, Retailer: "amazon", Price: 2499, Currency: "MXN",
		ObservedAt: time.Now().Add(-time.Hour),
	}
	dispatcher := &fakeDispatcher{}
	assembler := newTestAssembler(cache, &fakeStore{}, dispatcher, &fakeFetcher{}, &fakeCatalog{}, &fakeCapacity{available: 1})

	result, err := assembler.Lookup(t.Context(), 42, "MX")

	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	assert.Equal(t, SourceCache, result.Source)
	assert.False(t, result.Summary.Stale)
	assert.Empty(t, dispatcher.jobs, "a fresh hit must not trigger a refresh")
}

func TestLookupStaleCacheHitTriggersBackgroundRefresh(t *testing.T) {
	cache := newFakeCache()
	cache.entries["price:MX:42"] = &models.BestPriceSummary{
		ComponentID: 42, Retailer: "amazon", Price: 2499, Currency: "MXN",
		ObservedAt: time.Now().Add(-25 * time.Hour),
	}
	dispatcher := &fakeDispatcher{}
	assembler := newTestAssembler(cache, &fakeStore{}, dispatcher, &fakeFetcher{}, &fakeCatalog{}, &fakeCapacity{available: 1})

	result, err := assembler.Lookup(t.Context(), 42, "MX")

	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	assert.True(t, result.Summary.Stale)
	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, []int{42}, dispatcher.jobs[0].ComponentIDs)
	assert.Equal(t, "MX", dispatcher.jobs[0].Country)
}

func TestLookupFallsThroughToStoreAndRepopulatesCache(t *testing.T) {
	cache := newFakeCache()
	store := &fakeStore{observations: []models.PriceObservation{
		{ComponentID: 42, CountryCode: "MX", Retailer: "mercadolibre", Price: 2450, Currency: "MXN", ObservedAt: time.Now().Add(-2 * time.Hour)},
		{ComponentID: 42, CountryCode: "MX", Retailer: "amazon", Price: 2600, Currency: "MXN", ObservedAt: time.Now().Add(-2 * time.Hour)},
	}}
	dispatcher := &fakeDispatcher{}
	assembler := newTestAssembler(cache, store, dispatcher, &fakeFetcher{}, &fakeCatalog{}, &fakeCapacity{available: 1})

	result, err := assembler.Lookup(t.Context(), 42, "MX")

	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	assert.Equal(t, SourceStore, result.Source)
	assert.Equal(t, 2450.0, result.Summary.Price)
	assert.Equal(t, 1, cache.sets, "store hit must repopulate the cache")
	assert.Empty(t, dispatcher.jobs)
}

func TestLookupMissQueuesRefreshAndReportsPending(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	assembler := newTestAssembler(newFakeCache(), &fakeStore{}, dispatcher, &fakeFetcher{}, &fakeCatalog{}, &fakeCapacity{available: 1})

	result, err := assembler.Lookup(t.Context(), 42, "MX")

	require.NoError(t, err)
	assert.Nil(t, result.Summary)
	assert.True(t, result.Pending)
	assert.Equal(t, SourceQueued, result.Source)
	require.Len(t, dispatcher.jobs, 1)
}

func TestLookupWaitFailsFastWithoutCapacity(t *testing.T) {
	assembler := newTestAssembler(newFakeCache(), &fakeStore{}, &fakeDispatcher{}, &fakeFetcher{}, &fakeCatalog{}, &fakeCapacity{available: 0})

	_, err := assembler.LookupWait(t.Context(), 42, "MX")

	require.Error(t, err)
	var svcErr *shared.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, shared.ErrorCategoryResource, svcErr.Category)
}

func TestLookupWaitScrapesPersistsAndCaches(t *testing.T) {
	cache := newFakeCache()
	store := &fakeStore{}
	fetcher := &fakeFetcher{results: map[string][]models.RawObservation{
		"amazon": {{Name: "AMD Ryzen 5 5600X Processor", Price: 2499, Currency: "MXN", Stock: models.StockInStock, Link: "https://www.amazon.com.mx/x/dp/B1"}},
	}}
	catalog := &fakeCatalog{names: map[int]string{42: "AMD Ryzen 5 5600X"}}
	assembler := newTestAssembler(cache, store, &fakeDispatcher{}, fetcher, catalog, &fakeCapacity{available: 1})

	result, err := assembler.LookupWait(t.Context(), 42, "MX")

	require.NoError(t, err)
	require.NotNil(t, result.Summary)
	assert.Equal(t, SourceLive, result.Source)
	assert.Equal(t, 2499.0, result.Summary.Price)
	assert.Len(t, store.inserted, 1, "live results must be persisted")
	assert.Equal(t, 1, cache.sets)
}

func TestAssemblePageBudgetNeverExcludesUnknownPrices(t *testing.T) {
	cache := newFakeCache()
	cache.entries["price:MX:1"] = &models.BestPriceSummary{ComponentID: 1, Retailer: "amazon", Price: 50, ObservedAt: time.Now()}
	cache.entries["price:MX:2"] = &models.BestPriceSummary{ComponentID: 2, Retailer: "amazon", Price: 150, ObservedAt: time.Now()}

	catalog := &fakeCatalog{components: []models.Component{
		{ID: 1, Name: "Cheap fan"}, {ID: 2, Name: "Pricey fan"}, {ID: 3, Name: "Unknown fan"},
	}}
	assembler := newTestAssembler(cache, &fakeStore{}, &fakeDispatcher{}, &fakeFetcher{}, catalog, &fakeCapacity{available: 1})

	items, err := assembler.AssemblePage(t.Context(), "MX", 100, nil)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, 3, items[1].ID, "items without a known price stay in under a budget filter")
	assert.Nil(t, items[1].BestPrice)
}

func TestAssemblePageIsolatesPerItemFailures(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("db down")}
	catalog := &fakeCatalog{components: []models.Component{{ID: 7, Name: "Some GPU"}}}
	assembler := newTestAssembler(newFakeCache(), store, &fakeDispatcher{}, &fakeFetcher{}, catalog, &fakeCapacity{available: 1})

	items, err := assembler.AssemblePage(t.Context(), "MX", 0, nil)

	require.NoError(t, err, "a failed price lookup must not fail the page")
	require.Len(t, items, 1)
	assert.Nil(t, items[0].BestPrice)
}

func TestAssemblePagePropagatesCatalogFailure(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("catalog unreachable")}
	assembler := newTestAssembler(newFakeCache(), &fakeStore{}, &fakeDispatcher{}, &fakeFetcher{}, catalog, &fakeCapacity{available: 1})

	_, err := assembler.AssemblePage(t.Context(), "MX", 0, nil)

	require.Error(t, err)
}
