package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/services"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// Slices of the collaborators the worker consumes. Tests substitute fakes.
type jobQueue interface {
	Receive(ctx context.Context, consumer string, block time.Duration) ([]services.Delivery, error)
	Ack(ctx context.Context, deliveryID string) error
	DeadLetter(ctx context.Context, delivery services.Delivery, reason string) error
	ReclaimStale(ctx context.Context, consumer string, minIdle time.Duration, redeliveryLimit int) ([]services.Delivery, error)
}

type nameResolver interface {
	ComponentName(ctx context.Context, componentID int) (string, error)
}

type priceFetcher interface {
	FetchAll(ctx context.Context, searchTerm string, retailers []string) map[string][]models.RawObservation
}

type priceSink interface {
	InsertBatch(ctx context.Context, observations []models.PriceObservation) error
	RecentObservations(ctx context.Context, componentID int, countryCode string, window time.Duration) ([]models.PriceObservation, error)
}

type summaryWriter interface {
	Set(ctx context.Context, summary *models.BestPriceSummary, countryCode string)
}

// RefreshWorker consumes refresh jobs from the queue, scrapes current prices
// for each component and appends the observations to the store. A job is
// acknowledged only after its results are persisted, so a crash mid job means
// redelivery rather than loss. Processing the same job twice only appends
// duplicate observations, which the read path tolerates.
type RefreshWorker struct {
	queue           jobQueue
	catalog         nameResolver
	coordinator     priceFetcher
	store           priceSink
	cache           summaryWriter
	selector        *services.BestPriceSelector
	workerCount     int
	redeliveryLimit int
	retry           *shared.RetryPolicy
	logger          *logrus.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewRefreshWorker(
	queue jobQueue,
	catalog nameResolver,
	coordinator priceFetcher,
	store priceSink,
	cache summaryWriter,
	selector *services.BestPriceSelector,
	workerCount int,
	redeliveryLimit int,
) *RefreshWorker {
	if workerCount < 1 {
		workerCount = 1
	}
	return &RefreshWorker{
		queue:           queue,
		catalog:         catalog,
		coordinator:     coordinator,
		store:           store,
		cache:           cache,
		selector:        selector,
		workerCount:     workerCount,
		redeliveryLimit: redeliveryLimit,
		retry:           shared.NewDefaultRetryPolicy(),
		logger:          logrus.New(),
	}
}

// Start launches the consumer goroutines plus a reclaimer that rescues
// deliveries stuck with dead consumers.
func (w *RefreshWorker) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel

	for i := 0; i < w.workerCount; i++ {
		consumer := fmt.Sprintf("worker-%d", i+1)
		w.wg.Add(1)
		go w.consumeLoop(ctx, consumer)
	}

	w.wg.Add(1)
	go w.reclaimLoop(ctx)

	w.logger.WithFields(logrus.Fields{"workers": w.workerCount}).Info("Refresh workers started")
}

// Stop signals all loops to exit and waits for in flight jobs to finish.
func (w *RefreshWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("Refresh workers stopped")
}

func (w *RefreshWorker) consumeLoop(ctx context.Context, consumer string) {
	defer w.wg.Done()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		deliveries, err := w.queue.Receive(ctx, consumer, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := w.retry.Backoff(failures)
			w.logger.WithFields(logrus.Fields{
				"consumer": consumer,
				"error":    err,
				"delay":    delay,
			}).Warn("Queue receive failed, backing off")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		failures = 0

		for _, delivery := range deliveries {
			w.handleDelivery(ctx, consumer, delivery)
		}
	}
}

func (w *RefreshWorker) reclaimLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deliveries, err := w.queue.ReclaimStale(ctx, "reclaimer", 2*time.Minute, w.redeliveryLimit)
			if err != nil {
				w.logger.WithFields(logrus.Fields{"error": err}).Warn("Stale delivery reclaim failed")
				continue
			}
			for _, delivery := range deliveries {
				w.handleDelivery(ctx, "reclaimer", delivery)
			}
		}
	}
}

func (w *RefreshWorker) handleDelivery(ctx context.Context, consumer string, delivery services.Delivery) {
	job, err := models.ParseRefreshJob(delivery.Body)
	if err != nil {
		// malformed payloads can never succeed, keep them out of the retry cycle
		if dlErr := w.queue.DeadLetter(ctx, delivery, err.Error()); dlErr != nil {
			w.logger.WithFields(logrus.Fields{
				"delivery_id": delivery.ID,
				"error":       dlErr,
			}).Error("Failed to dead letter malformed job")
		}
		return
	}

	if err := w.processJob(ctx, job); err != nil {
		// leave unacknowledged so the delivery comes back around
		w.logger.WithFields(logrus.Fields{
			"consumer":    consumer,
			"delivery_id": delivery.ID,
			"components":  len(job.ComponentIDs),
			"error":       err,
		}).Warn("Refresh job failed, leaving for redelivery")
		return
	}

	if err := w.queue.Ack(ctx, delivery.ID); err != nil {
		w.logger.WithFields(logrus.Fields{
			"delivery_id": delivery.ID,
			"error":       err,
		}).Error("Failed to acknowledge completed job")
	}
}

// processJob refreshes every resolvable component in the job. Components the
// catalog cannot resolve are skipped; if none resolve the job fails so it is
// retried once the catalog recovers.
func (w *RefreshWorker) processJob(ctx context.Context, job *models.RefreshJob) error {
	resolved := 0
	succeeded := 0
	var failures []error
	var refreshErr error
	var resolveErr error

	for _, componentID := range job.ComponentIDs {
		name, err := w.catalog.ComponentName(ctx, componentID)
		if err != nil {
			resolveErr = err
			failures = append(failures, err)
			w.logger.WithFields(logrus.Fields{
				"component_id": componentID,
				"error":        err,
			}).Debug("Could not resolve component name, skipping")
			continue
		}
		resolved++

		if err := w.refreshComponent(ctx, componentID, name, job); err != nil {
			refreshErr = err
			failures = append(failures, err)
			w.logger.WithFields(logrus.Fields{
				"component_id": componentID,
				"error":        err,
			}).Debug("Component refresh failed")
			continue
		}
		succeeded++
	}

	if len(failures) > 0 {
		w.logger.WithFields(logrus.Fields{
			"country": job.Country,
		}).Warn(shared.BuildBatchErrorSummary(succeeded, len(failures), failures))
	}

	if resolved == 0 && len(job.ComponentIDs) > 0 {
		return shared.NewNetworkError("refresh_worker", "process_job",
			"no component in job could be resolved", resolveErr)
	}
	// a persistence failure must surface so the delivery stays pending
	return refreshErr
}

func (w *RefreshWorker) refreshComponent(ctx context.Context, componentID int, name string, job *models.RefreshJob) error {
	// a job raced by another refresh may find fresh data already stored;
	// skip the scrape unless the job forces one
	if !job.Force {
		if recent, err := w.store.RecentObservations(ctx, componentID, job.Country, w.selector.StaleThreshold()); err == nil {
			if summary := w.selector.SelectBest(recent, time.Now()); summary != nil && !summary.Stale {
				w.logger.WithFields(logrus.Fields{
					"component_id": componentID,
					"observed_at":  summary.ObservedAt,
				}).Debug("Component already fresh, skipping scrape")
				return nil
			}
		}
	}

	fetched := w.coordinator.FetchAll(ctx, name, job.Retailers)
	observedAt := time.Now()

	observations := services.ObservationsFromRaw(componentID, job.Country, fetched, observedAt)
	if len(observations) == 0 {
		w.logger.WithFields(logrus.Fields{
			"component_id": componentID,
			"name":         name,
		}).Info("No prices found for component")
		return nil
	}

	if err := w.store.InsertBatch(ctx, observations); err != nil {
		return err
	}

	if summary := w.selector.SelectBest(observations, observedAt); summary != nil {
		w.cache.Set(ctx, summary, job.Country)
	}

	w.logger.WithFields(logrus.Fields{
		"component_id": componentID,
		"observations": len(observations),
		"country":      job.Country,
	}).Info("Refreshed component prices")
	return nil
}
