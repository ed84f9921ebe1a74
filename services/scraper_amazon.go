package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// amazonProductLinkRegex accepts only canonical product URLs, not category or
// sponsored redirect links.
var amazonProductLinkRegex = regexp.MustCompile(`amazon\.com\.mx/(.*/)?(dp|gp)/`)

// AmazonScraper drives a headless browser against Amazon Mexico search
// results. Search pages are rendered client-side, so a plain HTTP fetch is
// not enough here.
type AmazonScraper struct {
	pool   *BrowserPool
	pacer  *shared.ScrapePacer
	logger *logrus.Logger
}

// NewAmazonScraper creates a scraper sharing the given browser session pool
func NewAmazonScraper(pool *BrowserPool) *AmazonScraper {
	return &AmazonScraper{
		pool:   pool,
		pacer:  shared.NewScrapePacer(2 * time.Second),
		logger: logrus.New(),
	}
}

func (s *AmazonScraper) Retailer() string {
	return RetailerAmazon
}

// Scrape fetches up to maxPages of search results for the given term.
// The browser session is released on every exit path, including context
// cancellation mid-page.
func (s *AmazonScraper) Scrape(ctx context.Context, searchTerm string, maxPages int) ([]models.RawObservation, error) {
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

		pageItems, err := s.scrapeSearchPage(browserCtx, searchTerm, page)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"retailer": RetailerAmazon,
				"term":     searchTerm,
				"page":     page,
				"error":    err,
			}).Warn("Search page scrape failed, stopping pagination")
			break
		}
		collected = append(collected, pageItems...)
	}

	results := filterRawObservations(RetailerAmazon, collected, amazonProductLinkRegex)
	s.logger.WithFields(logrus.Fields{
		"retailer":      RetailerAmazon,
		"term":          searchTerm,
		"raw_items":     len(collected),
		"usable_items":  len(results),
		"total_fetches": s.pacer.FetchCount(),
	}).Info("Completed retailer scrape")

	return results, nil
}

func (s *AmazonScraper) scrapeSearchPage(browserCtx context.Context, searchTerm string, page int) ([]models.RawObservation, error) {
	pageURL := fmt.Sprintf("https://www.amazon.com.mx/s?k=%s&page=%d", url.QueryEscape(searchTerm), page)

	var rawItems []map[string]interface{}
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(1200, 800),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(4*time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight * 0.8);`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`
			(function() {
				const results = Array.from(document.querySelectorAll("[data-component-type='s-search-result']"));
				return results.map(result => {
					let name = '';
					for (const selector of ["h2 a span", ".a-size-medium.a-color-base.a-text-normal"]) {
						const el = result.querySelector(selector);
						if (el && el.textContent.trim()) { name = el.textContent.trim(); break; }
					}

					let link = '';
					const linkEl = result.querySelector("h2 a.a-link-normal");
					if (linkEl) link = linkEl.href || '';

					let priceText = '';
					const priceEl = result.querySelector(".a-price .a-offscreen");
					if (priceEl) priceText = priceEl.textContent.trim();

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

		price, ok := parseLocalePrice(priceText)
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
		"retailer": RetailerAmazon,
		"page":     page,
		"found":    len(items),
	}).Debug("Parsed search results page")

	return items, nil
}
