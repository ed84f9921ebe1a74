package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// PriceStore persists price observations. The table is append only; nothing
// ever updates or deletes a row, so history stays intact.
type PriceStore struct {
	db     *sql.DB
	retry  *shared.RetryPolicy
	logger *logrus.Logger
}

func NewPriceStore(db *sql.DB) *PriceStore {
	return &PriceStore{
		db:     db,
		retry:  shared.NewDefaultRetryPolicy(),
		logger: logrus.New(),
	}
}

// ObservationsFromRaw converts scraped listings for one component into
// persistable observations, stamping them with a fresh id and timestamp.
func ObservationsFromRaw(componentID int, countryCode string, byRetailer map[string][]models.RawObservation, observedAt time.Time) []models.PriceObservation {
	var out []models.PriceObservation
	for retailer, raws := range byRetailer {
		for _, raw := range raws {
			out = append(out, models.PriceObservation{
				ID:          uuid.New().String(),
				ComponentID: componentID,
				Retailer:    retailer,
				CountryCode: countryCode,
				Price:       raw.Price,
				Currency:    raw.Currency,
				Stock:       raw.Stock,
				URL:         raw.Link,
				ScrapedName: raw.Name,
				ObservedAt:  observedAt,
			})
		}
	}
	return out
}

// InsertBatch appends all observations in a single transaction. Either every
// row lands or none do.
func (s *PriceStore) InsertBatch(ctx context.Context, observations []models.PriceObservation) error {
	if len(observations) == 0 {
		return nil
	}

	return s.retry.Do(ctx, "insert_price_batch", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return shared.NewDatabaseError("price_store", "insert_batch", "failed to begin transaction", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO price_observations
				(id, component_id, retailer, country_code, price, currency, stock, url, scraped_name, observed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
		if err != nil {
			return shared.NewDatabaseError("price_store", "insert_batch", "failed to prepare insert", err)
		}
		defer stmt.Close()

		for _, obs := range observations {
			if _, err := stmt.ExecContext(ctx,
				obs.ID, obs.ComponentID, obs.Retailer, obs.CountryCode,
				obs.Price, obs.Currency, obs.Stock, obs.URL, obs.ScrapedName, obs.ObservedAt,
			); err != nil {
				return shared.NewDatabaseError("price_store", "insert_batch",
					fmt.Sprintf("failed to insert observation for component %d", obs.ComponentID), err)
			}
		}

		if err := tx.Commit(); err != nil {
			return shared.NewDatabaseError("price_store", "insert_batch", "failed to commit batch", err)
		}

		s.logger.WithFields(logrus.Fields{
			"observations": len(observations),
		}).Info("Persisted price observation batch")
		return nil
	})
}

// RecentObservations returns observations for a component in a country made
// within the lookback window, newest first.
func (s *PriceStore) RecentObservations(ctx context.Context, componentID int, countryCode string, window time.Duration) ([]models.PriceObservation, error) {
	cutoff := time.Now().Add(-window)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, component_id, retailer, country_code, price, currency, stock, url, scraped_name, observed_at
		FROM price_observations
		WHERE component_id = $1 AND country_code = $2 AND observed_at >= $3
		ORDER BY observed_at DESC`,
		componentID, countryCode, cutoff)
	if err != nil {
		return nil, shared.NewDatabaseError("price_store", "recent_observations", "query failed", err)
	}
	defer rows.Close()

	var observations []models.PriceObservation
	for rows.Next() {
		var obs models.PriceObservation
		if err := rows.Scan(
			&obs.ID, &obs.ComponentID, &obs.Retailer, &obs.CountryCode,
			&obs.Price, &obs.Currency, &obs.Stock, &obs.URL, &obs.ScrapedName, &obs.ObservedAt,
		); err != nil {
			return nil, shared.NewDatabaseError("price_store", "recent_observations", "row scan failed", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewDatabaseError("price_store", "recent_observations", "row iteration failed", err)
	}

	return observations, nil
}

// History returns up to limit observations for a component in a country made
// within the lookback window, newest first.
func (s *PriceStore) History(ctx context.Context, componentID int, countryCode string, window time.Duration, limit int) ([]models.PriceObservation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	cutoff := time.Now().Add(-window)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, component_id, retailer, country_code, price, currency, stock, url, scraped_name, observed_at
		FROM price_observations
		WHERE component_id = $1 AND country_code = $2 AND observed_at >= $3
		ORDER BY observed_at DESC
		LIMIT $4`,
		componentID, countryCode, cutoff, limit)
	if err != nil {
		return nil, shared.NewDatabaseError("price_store", "history", "query failed", err)
	}
	defer rows.Close()

	var observations []models.PriceObservation
	for rows.Next() {
		var obs models.PriceObservation
		if err := rows.Scan(
			&obs.ID, &obs.ComponentID, &obs.Retailer, &obs.CountryCode,
			&obs.Price, &obs.Currency, &obs.Stock, &obs.URL, &obs.ScrapedName, &obs.ObservedAt,
		); err != nil {
			return nil, shared.NewDatabaseError("price_store", "history", "row scan failed", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewDatabaseError("price_store", "history", "row iteration failed", err)
	}

	return observations, nil
}

// LatestObservedAt returns the timestamp of the newest observation in the
// store, or the zero time when the table is empty.
func (s *PriceStore) LatestObservedAt(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MAX(observed_at) FROM price_observations`).Scan(&latest)
	if err != nil {
		return time.Time{}, shared.NewDatabaseError("price_store", "latest_observed_at", "query failed", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}
