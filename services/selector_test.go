package services

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UlisesFTP/pconstruct-pricing/models"
)

func observation(retailer string, price float64, age time.Duration) models.PriceObservation {
	return models.PriceObservation{
		ComponentID: 42,
		Retailer:    retailer,
		CountryCode: "MX",
		Price:       price,
		Currency:    "MXN",
		Stock:       models.StockInStock,
		URL:         "https://example.mx/product",
		ObservedAt:  time.Now().Add(-age),
	}
}

func TestSelectBestPicksCheapestTrusted(t *testing.T) {
	selector := NewBestPriceSelector([]string{"amazon", "mercadolibre"}, 24*time.Hour)

	best := selector.SelectBest([]models.PriceObservation{
		observation("amazon", 2600, time.Hour),
		observation("mercadolibre", 2450, time.Hour),
		observation("sketchy-shop", 1800, time.Hour),
	}, time.Now())

	require.NotNil(t, best)
	assert.Equal(t, "mercadolibre", best.Retailer)
	assert.Equal(t, 2450.0, best.Price)
	assert.False(t, best.Stale)
}

func TestSelectBestIgnoresNonPositivePrices(t *testing.T) {
	selector := NewBestPriceSelector([]string{"amazon"}, 24*time.Hour)

	best := selector.SelectBest([]models.PriceObservation{
		observation("amazon", 0, time.Hour),
		observation("amazon", -10, time.Hour),
	}, time.Now())

	assert.Nil(t, best)
}

func TestSelectBestReturnsNilWithoutCandidates(t *testing.T) {
	selector := NewBestPriceSelector([]string{"amazon"}, 24*time.Hour)

	assert.Nil(t, selector.SelectBest(nil, time.Now()))
	assert.Nil(t, selector.SelectBest([]models.PriceObservation{
		observation("untrusted", 100, time.Hour),
	}, time.Now()))
}

func TestSelectBestFlagsStaleObservations(t *testing.T) {
	selector := NewBestPriceSelector([]string{"amazon"}, 24*time.Hour)

	best := selector.SelectBest([]models.PriceObservation{
		observation("amazon", 2600, 25*time.Hour),
	}, time.Now())

	require.NotNil(t, best)
	assert.True(t, best.Stale, "a 25 hour old price must be served as stale")
}

func TestSelectBestProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	selector := NewBestPriceSelector([]string{"amazon", "mercadolibre", "cyberpuerta"}, 24*time.Hour)
	retailers := []string{"amazon", "mercadolibre", "cyberpuerta", "unknown-shop"}

	// each int encodes one observation: sign/magnitude become the price in
	// centavos, the low bits pick the retailer
	decode := func(encoded []int) []models.PriceObservation {
		observations := make([]models.PriceObservation, 0, len(encoded))
		for _, v := range encoded {
			retailer := retailers[abs(v)%len(retailers)]
			price := float64(v) / 100
			observations = append(observations, observation(retailer, price, time.Hour))
		}
		return observations
	}

	properties.Property("result is never pricier than any trusted candidate", prop.ForAll(
		func(encoded []int) bool {
			observations := decode(encoded)
			best := selector.SelectBest(observations, time.Now())
			if best == nil {
				// then no trusted positive priced candidate may exist
				for _, obs := range observations {
					if obs.Retailer != "unknown-shop" && obs.Price > 0 {
						return false
					}
				}
				return true
			}
			for _, obs := range observations {
				if obs.Retailer != "unknown-shop" && obs.Price > 0 && obs.Price < best.Price {
					return false
				}
			}
			return best.Retailer != "unknown-shop" && best.Price > 0
		},
		gen.SliceOf(gen.IntRange(-500000, 5000000)),
	))

	properties.TestingRun(t)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
