package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// ScrapeCoordinator fans a search term out to every registered retailer
// scraper and merges the results. A retailer that fails or times out
// contributes nothing instead of failing the whole fetch.
type ScrapeCoordinator struct {
	scrapers     []RetailerScraper
	perRetailer  time.Duration
	maxPages     int
	metrics      map[string]*shared.ServiceMetrics
	metricsMutex sync.RWMutex
	logger       *logrus.Logger
}

func NewScrapeCoordinator(scrapers []RetailerScraper, perRetailerTimeout time.Duration, maxPages int) *ScrapeCoordinator {
	if maxPages < 1 {
		maxPages = 1
	}
	metrics := make(map[string]*shared.ServiceMetrics, len(scrapers))
	for _, sc := range scrapers {
		metrics[sc.Retailer()] = shared.NewServiceMetrics(sc.Retailer())
	}
	return &ScrapeCoordinator{
		scrapers:    scrapers,
		perRetailer: perRetailerTimeout,
		maxPages:    maxPages,
		metrics:     metrics,
		logger:      logrus.New(),
	}
}

// Retailers lists the retailer names this coordinator can fetch from.
func (c *ScrapeCoordinator) Retailers() []string {
	names := make([]string, 0, len(c.scrapers))
	for _, sc := range c.scrapers {
		names = append(names, sc.Retailer())
	}
	return names
}

// MetricsSnapshot reports per retailer request counters for the admin surface.
func (c *ScrapeCoordinator) MetricsSnapshot() map[string]map[string]interface{} {
	c.metricsMutex.RLock()
	defer c.metricsMutex.RUnlock()

	out := make(map[string]map[string]interface{}, len(c.metrics))
	for retailer, m := range c.metrics {
		out[retailer] = m.Snapshot()
	}
	return out
}

// FetchAll scrapes the given retailers concurrently for searchTerm. Passing an
// empty retailer list fetches from all registered scrapers. Results are keyed
// by retailer name and deduplicated within each retailer.
func (c *ScrapeCoordinator) FetchAll(ctx context.Context, searchTerm string, retailers []string) map[string][]models.RawObservation {
	selected := c.selectScrapers(retailers)

	type retailerResult struct {
		retailer string
		items    []models.RawObservation
	}

	resultChan := make(chan retailerResult, len(selected))
	var wg sync.WaitGroup

	for _, scraper := range selected {
		wg.Add(1)
		go func(sc RetailerScraper) {
			defer wg.Done()

			scrapeCtx, cancel := context.WithTimeout(ctx, c.perRetailer)
			defer cancel()

			start := time.Now()
			items, err := sc.Scrape(scrapeCtx, searchTerm, c.maxPages)
			elapsed := time.Since(start)

			c.recordMetrics(sc.Retailer(), err == nil, elapsed)

			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"retailer":     sc.Retailer(),
					"term":         searchTerm,
					"elapsed":      elapsed,
					"success_rate": c.successRate(sc.Retailer()),
					"error":        err,
				}).Warn("Retailer fetch failed")
				resultChan <- retailerResult{retailer: sc.Retailer(), items: nil}
				return
			}

			resultChan <- retailerResult{retailer: sc.Retailer(), items: dedupeObservations(items)}
		}(scraper)
	}

	wg.Wait()
	close(resultChan)

	results := make(map[string][]models.RawObservation, len(selected))
	for r := range resultChan {
		results[r.retailer] = r.items
	}

	total := 0
	for _, items := range results {
		total += len(items)
	}
	c.logger.WithFields(logrus.Fields{
		"term":      searchTerm,
		"retailers": len(selected),
		"items":     total,
	}).Info("Completed coordinated fetch")

	return results
}

func (c *ScrapeCoordinator) selectScrapers(retailers []string) []RetailerScraper {
	if len(retailers) == 0 {
		return c.scrapers
	}
	wanted := make(map[string]bool, len(retailers))
	for _, name := range retailers {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var selected []RetailerScraper
	for _, sc := range c.scrapers {
		if wanted[sc.Retailer()] {
			selected = append(selected, sc)
		}
	}
	return selected
}

func (c *ScrapeCoordinator) successRate(retailer string) float64 {
	c.metricsMutex.RLock()
	m, ok := c.metrics[retailer]
	c.metricsMutex.RUnlock()
	if !ok {
		return 0
	}
	return m.SuccessRate()
}

func (c *ScrapeCoordinator) recordMetrics(retailer string, success bool, elapsed time.Duration) {
	c.metricsMutex.RLock()
	m, ok := c.metrics[retailer]
	c.metricsMutex.RUnlock()
	if !ok {
		return
	}
	m.RecordRequest(success, elapsed)
}

// dedupeObservations drops listings that repeat the same product at the same
// price. Retail search pages frequently show the same item in several slots.
func dedupeObservations(items []models.RawObservation) []models.RawObservation {
	seen := make(map[string]bool, len(items))
	var out []models.RawObservation
	for _, item := range items {
		key := fmt.Sprintf("%s|%.2f", normalizedNameKey(item.Name), item.Price)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func normalizedNameKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if len(key) > 50 {
		key = key[:50]
	}
	return key
}
