package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// jobPublisher is the slice of the queue the dispatcher needs.
type jobPublisher interface {
	Publish(ctx context.Context, body []byte) error
}

// RefreshDispatcher enqueues refresh jobs, retrying transient publish
// failures so a momentary broker hiccup does not lose a request.
type RefreshDispatcher struct {
	queue  jobPublisher
	retry  *shared.RetryPolicy
	logger *logrus.Logger
}

func NewRefreshDispatcher(queue jobPublisher) *RefreshDispatcher {
	return &RefreshDispatcher{
		queue:  queue,
		retry:  shared.NewDefaultRetryPolicy(),
		logger: logrus.New(),
	}
}

// Dispatch publishes a refresh job and returns once it is durably queued.
func (d *RefreshDispatcher) Dispatch(ctx context.Context, job *models.RefreshJob) error {
	body, err := job.Encode()
	if err != nil {
		return shared.NewValidationError("refresh_dispatcher", "dispatch",
			fmt.Sprintf("failed to encode refresh job: %v", err))
	}

	if err := d.retry.Do(ctx, "publish_refresh_job", func() error {
		return d.queue.Publish(ctx, body)
	}); err != nil {
		return err
	}

	d.logger.WithFields(logrus.Fields{
		"components": len(job.ComponentIDs),
		"country":    job.Country,
	}).Info("Dispatched refresh job")
	return nil
}

// DispatchAsync fires a dispatch in the background with its own timeout.
// Failures are logged; callers on the read path never wait on the queue.
func (d *RefreshDispatcher) DispatchAsync(job *models.RefreshJob) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := d.Dispatch(ctx, job); err != nil {
			var svcErr *shared.ServiceError
			if errors.As(err, &svcErr) {
				svcErr.LogError()
				return
			}
			d.logger.WithFields(logrus.Fields{
				"components": len(job.ComponentIDs),
				"country":    job.Country,
				"error":      err,
			}).Error("Background refresh dispatch failed")
		}
	}()
}
