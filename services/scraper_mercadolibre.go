package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// MercadoLibre listing URLs either carry the MLM item code or live on the
// articulo/listado subdomains.
var mercadoLibreLinkRegex = regexp.MustCompile(`(articulo\.mercadolibre\.com\.mx|mercadolibre\.com\.mx/.*MLM)`)

const mercadoLibrePageSize = 48

// MercadoLibreScraper drives a headless browser against MercadoLibre Mexico
// search listings.
type MercadoLibreScraper struct {
	pool   *BrowserPool
	pacer  *shared.ScrapePacer
	logger *logrus.Logger
}

// NewMercadoLibreScraper creates a scraper sharing the given browser session pool
func NewMercadoLibreScraper(pool *BrowserPool) *MercadoLibreScraper {
	return &MercadoLibreScraper{
		pool:   pool,
		pacer:  shared.NewScrapePacer(2 * time.Second),
		logger: logrus.New(),
	}
}

func (s *MercadoLibreScraper) Retailer() string {
	return RetailerMercadoLibre
}

func (s *MercadoLibreScraper) Scrape(ctx context.Context, searchTerm string, maxPages int) ([]models.RawObservation, error) {
	if err := s.pool.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.pool.Release()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, headlessBrowserOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if maxPages < 1 {
		maxPages = 1
	}

	var collected []models.RawObservation
	for page := 1; page <= maxPages; page++ {
		s.pacer.Pace()

		pageItems, err := s.scrapeListingPage(browserCtx, searchTerm, page)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"retailer": RetailerMercadoLibre,
				"term":     searchTerm,
				"page":     page,
				"error":    err,
			}).Warn("Listing page scrape failed, stopping pagination")
			break
		}
		collected = append(collected, pageItems...)
	}

	results := filterRawObservations(RetailerMercadoLibre, collected, mercadoLibreLinkRegex)
	s.logger.WithFields(logrus.Fields{
		"retailer":      RetailerMercadoLibre,
		"term":          searchTerm,
		"raw_items":     len(collected),
		"usable_items":  len(results),
		"total_fetches": s.pacer.FetchCount(),
	}).Info("Completed retailer scrape")

	return results, nil
}

func (s *MercadoLibreScraper) listingURL(searchTerm string, page int) string {
	slug := strings.ReplaceAll(strings.TrimSpace(searchTerm), " ", "-")
	if page == 1 {
		return fmt.Sprintf("https://listado.mercadolibre.com.mx/%s", slug)
	}
	offset := (page-1)*mercadoLibrePageSize + 1
	return fmt.Sprintf("https://listado.mercadolibre.com.mx/%s_Desde_%d", slug, offset)
}

func (s *MercadoLibreScraper) scrapeListingPage(browserCtx context.Context, searchTerm string, page int) ([]models.RawObservation, error) {
	var rawItems []map[string]interface{}
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(1200, 800),
		chromedp.Navigate(s.listingURL(searchTerm, page)),
		chromedp.Sleep(5*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight * 0.5);`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`
			(function() {
				let results = [];
				for (const selector of [".ui-search-result__wrapper", ".ui-search-layout__item", ".shops__result-wrapper"]) {
					results = Array.from(document.querySelectorAll(selector));
					if (results.length > 0) break;
				}

				return results.map(result => {
					let name = '';
					for (const selector of [".ui-search-item__title", "h2.ui-search-item__title", ".poly-component__title"]) {
						const el = result.querySelector(selector);
						if (el && el.textContent.trim()) { name = el.textContent.trim(); break; }
					}

					let priceText = '';
					const fraction = result.querySelector(".andes-money-amount__fraction");
					if (fraction) priceText = fraction.textContent.trim();

					let link = '';
					const linkEl = result.querySelector("a.ui-search-link, a.poly-component__title, a");
					if (linkEl) link = linkEl.href || '';

					return { name: name, priceText: priceText, link: link };
				}).filter(item => item.name && item.priceText && item.link);
			})();
		`, &rawItems),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp execution failed: %w", err)
	}

	var items []models.RawObservation
	for _, item := range rawItems {
		name, _ := item["name"].(string)
		priceText, _ := item["priceText"].(string)
		link, _ := item["link"].(string)

		// ML renders the integer part with dot grouping; strip before parsing
		price, ok := parseLocalePrice(strings.ReplaceAll(priceText, ".", ""))
		if !ok {
			continue
		}

		items = append(items, models.RawObservation{
			Name:     name,
			Price:    price,
			Currency: "MXN",
			Stock:    models.StockUnknown,
			Link:     link,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"retailer": RetailerMercadoLibre,
		"page":     page,
		"found":    len(items),
	}).Debug("Parsed listing page")

	return items, nil
}
