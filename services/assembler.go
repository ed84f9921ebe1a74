package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// Narrow views of the collaborators the assembler composes. Tests swap these
// for fakes.
type summaryCache interface {
	Get(ctx context.Context, componentID int, countryCode string) (*models.BestPriceSummary, bool)
	Set(ctx context.Context, summary *models.BestPriceSummary, countryCode string)
}

type observationStore interface {
	RecentObservations(ctx context.Context, componentID int, countryCode string, window time.Duration) ([]models.PriceObservation, error)
	InsertBatch(ctx context.Context, observations []models.PriceObservation) error
}

type refreshDispatcher interface {
	DispatchAsync(job *models.RefreshJob)
}

type observationFetcher interface {
	FetchAll(ctx context.Context, searchTerm string, retailers []string) map[string][]models.RawObservation
}

type componentResolver interface {
	ComponentName(ctx context.Context, componentID int) (string, error)
	Components(ctx context.Context, params map[string]string) ([]models.Component, error)
}

type capacityGauge interface {
	Available() int
}

// PriceAssembler serves the best price read path: cache first, then the
// observation store, then either a bounded live scrape or an async refresh.
type PriceAssembler struct {
	cache       summaryCache
	store       observationStore
	dispatcher  refreshDispatcher
	coordinator observationFetcher
	catalog     componentResolver
	selector    *BestPriceSelector
	capacity    capacityGauge
	storeWindow time.Duration
	syncWait    time.Duration
	logger      *logrus.Logger
}

// LookupResult carries a best price answer plus how it was obtained. Pending
// means no price is available yet and a refresh has been queued.
type LookupResult struct {
	Summary *models.BestPriceSummary `json:"summary"`
	Source  string                   `json:"source"`
	Pending bool                     `json:"pending"`
}

const (
	SourceCache  = "cache"
	SourceStore  = "store"
	SourceLive   = "live"
	SourceQueued = "queued"
)

func NewPriceAssembler(
	cache summaryCache,
	store observationStore,
	dispatcher refreshDispatcher,
	coordinator observationFetcher,
	catalog componentResolver,
	selector *BestPriceSelector,
	capacity capacityGauge,
	storeWindow time.Duration,
	syncWait time.Duration,
) *PriceAssembler {
	return &PriceAssembler{
		cache:       cache,
		store:       store,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		catalog:     catalog,
		selector:    selector,
		capacity:    capacity,
		storeWindow: storeWindow,
		syncWait:    syncWait,
		logger:      logrus.New(),
	}
}

// Lookup answers a best price query without ever blocking on a scrape. Cache
// hits are served as is; a stale hit additionally queues a background
// refresh. On a cache miss the store is consulted and the result re-cached.
// When nothing is known a refresh job is queued and Pending is reported.
func (a *PriceAssembler) Lookup(ctx context.Context, componentID int, countryCode string) (*LookupResult, error) {
	if summary, ok := a.cache.Get(ctx, componentID, countryCode); ok {
		summary.Stale = a.selector.IsStale(summary.ObservedAt, time.Now())
		if summary.Stale {
			a.dispatcher.DispatchAsync(&models.RefreshJob{
				ComponentIDs: []int{componentID},
				Country:      countryCode,
			})
		}
		return &LookupResult{Summary: summary, Source: SourceCache}, nil
	}

	observations, err := a.store.RecentObservations(ctx, componentID, countryCode, a.storeWindow)
	if err != nil {
		return nil, err
	}

	if summary := a.selector.SelectBest(observations, time.Now()); summary != nil {
		a.cache.Set(ctx, summary, countryCode)
		if summary.Stale {
			a.dispatcher.DispatchAsync(&models.RefreshJob{
				ComponentIDs: []int{componentID},
				Country:      countryCode,
			})
		}
		return &LookupResult{Summary: summary, Source: SourceStore}, nil
	}

	a.dispatcher.DispatchAsync(&models.RefreshJob{
		ComponentIDs: []int{componentID},
		Country:      countryCode,
	})
	return &LookupResult{Source: SourceQueued, Pending: true}, nil
}

// LookupWait behaves like Lookup but, when nothing is known, performs one
// bounded live scrape instead of only queueing. If no browser session is free
// the caller is told to retry later rather than waiting on the pool.
func (a *PriceAssembler) LookupWait(ctx context.Context, componentID int, countryCode string) (*LookupResult, error) {
	result, err := a.Lookup(ctx, componentID, countryCode)
	if err != nil {
		return nil, err
	}
	if !result.Pending {
		return result, nil
	}

	if a.capacity.Available() == 0 {
		return nil, shared.NewResourceError("price_assembler", "lookup_wait",
			"no browser session available, retry later")
	}

	name, err := a.catalog.ComponentName(ctx, componentID)
	if err != nil {
		return nil, err
	}

	scrapeCtx, cancel := context.WithTimeout(ctx, a.syncWait)
	defer cancel()

	fetched := a.coordinator.FetchAll(scrapeCtx, name, nil)
	observedAt := time.Now()
	observations := ObservationsFromRaw(componentID, countryCode, fetched, observedAt)

	if len(observations) > 0 {
		if err := a.store.InsertBatch(ctx, observations); err != nil {
			a.logger.WithFields(logrus.Fields{
				"component_id": componentID,
				"error":        err,
			}).Error("Failed to persist live scrape results")
		}
	}

	summary := a.selector.SelectBest(observations, observedAt)
	if summary == nil {
		return &LookupResult{Source: SourceLive, Pending: true}, nil
	}

	a.cache.Set(ctx, summary, countryCode)
	return &LookupResult{Summary: summary, Source: SourceLive}, nil
}

// AssemblePage fetches a catalog page and attaches each component's best
// price. A failed price lookup leaves that item's price empty instead of
// failing the page. When maxPrice is positive, items whose best price exceeds
// it are dropped; items with no known price always stay in.
func (a *PriceAssembler) AssemblePage(ctx context.Context, countryCode string, maxPrice float64, catalogParams map[string]string) ([]models.CatalogItem, error) {
	components, err := a.catalog.Components(ctx, catalogParams)
	if err != nil {
		return nil, err
	}

	items := make([]models.CatalogItem, 0, len(components))
	for _, component := range components {
		item := models.CatalogItem{
			ID:       component.ID,
			Name:     component.Name,
			Category: component.Category,
		}

		result, err := a.Lookup(ctx, component.ID, countryCode)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"component_id": component.ID,
				"error":        err,
			}).Warn("Price lookup failed while assembling catalog page")
		} else if result.Summary != nil {
			item.BestPrice = result.Summary
		}

		if maxPrice > 0 && item.BestPrice != nil && item.BestPrice.Price > maxPrice {
			continue
		}
		items = append(items, item)
	}

	a.logger.WithFields(logrus.Fields{
		"country":    countryCode,
		"components": len(components),
		"items":      len(items),
		"max_price":  maxPrice,
	}).Debug("Assembled catalog page")

	return items, nil
}
