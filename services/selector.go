package services

import (
	"sort"
	"strings"
	"time"

	"github.com/UlisesFTP/pconstruct-pricing/models"
)

// BestPriceSelector picks the cheapest observation from retailers on its
// trusted list and decides whether a stored price is still fresh.
type BestPriceSelector struct {
	trusted        map[string]bool
	staleThreshold time.Duration
}

func NewBestPriceSelector(trustedRetailers []string, staleThreshold time.Duration) *BestPriceSelector {
	trusted := make(map[string]bool, len(trustedRetailers))
	for _, name := range trustedRetailers {
		trusted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &BestPriceSelector{
		trusted:        trusted,
		staleThreshold: staleThreshold,
	}
}

// StaleThreshold returns the configured staleness threshold.
func (s *BestPriceSelector) StaleThreshold() time.Duration {
	return s.staleThreshold
}

// IsStale reports whether an observation made at observedAt has aged past the
// configured staleness threshold.
func (s *BestPriceSelector) IsStale(observedAt time.Time, now time.Time) bool {
	return now.Sub(observedAt) > s.staleThreshold
}

// SelectBest returns the lowest priced observation from a trusted retailer,
// or nil when no observation qualifies. Ties keep the earlier observation in
// the input order. The returned summary's Stale flag is computed against now.
func (s *BestPriceSelector) SelectBest(observations []models.PriceObservation, now time.Time) *models.BestPriceSummary {
	candidates := make([]models.PriceObservation, 0, len(observations))
	for _, obs := range observations {
		if !s.trusted[strings.ToLower(obs.Retailer)] {
			continue
		}
		if obs.Price <= 0 {
			continue
		}
		candidates = append(candidates, obs)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Price < candidates[j].Price
	})

	best := candidates[0]
	return &models.BestPriceSummary{
		ComponentID: best.ComponentID,
		Retailer:    best.Retailer,
		Price:       best.Price,
		Currency:    best.Currency,
		URL:         best.URL,
		ObservedAt:  best.ObservedAt,
		Stale:       s.IsStale(best.ObservedAt, now),
	}
}
