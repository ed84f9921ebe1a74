package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// Retailer identifiers. These are the only values the pipeline stores in the
// retailer column; the trusted allow-list in the selector is a subset of them.
const (
	RetailerAmazon       = "amazon"
	RetailerMercadoLibre = "mercadolibre"
	RetailerCyberpuerta  = "cyberpuerta"
)

// RetailerScraper turns a search term into raw product observations from one
// retailer's search results. Implementations never panic past this boundary:
// per-item parse failures are skipped and logged, and a retailer returning
// zero results is not an error for the caller.
type RetailerScraper interface {
	Retailer() string
	Scrape(ctx context.Context, searchTerm string, maxPages int) ([]models.RawObservation, error)
}

// BrowserPool caps the number of concurrent headless browser sessions.
// Each chromedp scrape task holds one slot for the lifetime of its session.
type BrowserPool struct {
	slots chan struct{}
}

// NewBrowserPool creates a pool with the given number of session slots
func NewBrowserPool(size int) *BrowserPool {
	if size <= 0 {
		size = 1
	}
	pool := &BrowserPool{slots: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		pool.slots <- struct{}{}
	}
	return pool
}

// Acquire blocks until a session slot is free or the context expires
func (p *BrowserPool) Acquire(ctx context.Context) error {
	select {
	case <-p.slots:
		return nil
	case <-ctx.Done():
		return shared.NewTimeoutError("browser-pool", "acquire",
			"timed out waiting for a browser session slot", ctx.Err())
	}
}

// Release returns a session slot to the pool
func (p *BrowserPool) Release() {
	select {
	case p.slots <- struct{}{}:
	default:
		// Release without a matching Acquire; ignore rather than block
	}
}

// Available returns the number of free session slots
func (p *BrowserPool) Available() int {
	return len(p.slots)
}

// boundedRequestTimeout clamps a per-request timeout to the context's
// remaining deadline, so non-chromedp scrapers honor the same scrape bound
// as the browser-driven ones.
func boundedRequestTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	if remaining < fallback {
		return remaining
	}
	return fallback
}

// headlessBrowserOptions returns the chromedp allocator options shared by all
// browser-driven scrapers: headless, container-safe, with a desktop UA.
func headlessBrowserOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
}

// localePriceRegex matches the first currency-formatted number using the
// MX locale grouping convention: $12,999.00, $ 1,234, 999.50
var localePriceRegex = regexp.MustCompile(`\$?\s*([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?)`)

// parseLocalePrice extracts the first currency-formatted positive number from
// free text. Returns false when no usable price is present.
func parseLocalePrice(text string) (float64, bool) {
	match := localePriceRegex.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	cleaned := strings.ReplaceAll(match[1], ",", "")
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// promotionalMarkers are lines that look like listings but carry no product.
// Checked case-folded against the scraped name.
var promotionalMarkers = []string{
	"patrocinado",
	"sponsored",
	"publicidad",
	"anuncio",
	"oferta del día",
	"más vendido",
	"resultados de búsqueda",
	"ver más opciones",
}

// isUsableProductName enforces the minimum-length rule and drops
// promotional/placeholder lines.
func isUsableProductName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) <= 15 {
		return false
	}

	folded := strings.ToLower(trimmed)
	for _, marker := range promotionalMarkers {
		if strings.Contains(folded, marker) {
			return false
		}
	}
	return true
}

// filterRawObservations applies the shared acceptance rules: usable name,
// positive parsed price, and a link matching the retailer's product-URL
// pattern. Observations missing any field are dropped silently (debug log).
func filterRawObservations(retailer string, raws []models.RawObservation, linkPattern *regexp.Regexp) []models.RawObservation {
	logger := logrus.WithFields(logrus.Fields{
		"component": "RetailerScraper",
		"retailer":  retailer,
	})

	kept := make([]models.RawObservation, 0, len(raws))
	for _, raw := range raws {
		if !isUsableProductName(raw.Name) {
			logger.WithField("name", raw.Name).Debug("Dropping observation with unusable name")
			continue
		}
		if raw.Price <= 0 {
			logger.WithField("name", raw.Name).Debug("Dropping observation without a positive price")
			continue
		}
		if raw.Link == "" || (linkPattern != nil && !linkPattern.MatchString(raw.Link)) {
			logger.WithField("link", raw.Link).Debug("Dropping observation without a product link")
			continue
		}
		if raw.Stock == "" {
			raw.Stock = models.StockUnknown
		}
		kept = append(kept, raw)
	}

	return kept
}
