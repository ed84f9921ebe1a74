package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

var cyberpuertaLinkRegex = regexp.MustCompile(`cyberpuerta\.mx/`)

// CyberpuertaScraper uses plain HTTP collection. Cyberpuerta serves its
// product grid server side, so no browser session is needed.
type CyberpuertaScraper struct {
	pacer   *shared.ScrapePacer
	timeout time.Duration
	logger  *logrus.Logger
}

func NewCyberpuertaScraper() *CyberpuertaScraper {
	return &CyberpuertaScraper{
		pacer:   shared.NewScrapePacer(1500 * time.Millisecond),
		timeout: 30 * time.Second,
		logger:  logrus.New(),
	}
}

func (s *CyberpuertaScraper) Retailer() string {
	return RetailerCyberpuerta
}

func (s *CyberpuertaScraper) Scrape(ctx context.Context, searchTerm string, maxPages int) ([]models.RawObservation, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	var collected []models.RawObservation

	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	// each request is bounded by the caller's remaining deadline, so a hung
	// connection cannot outlive the scrape context
	c.SetRequestTimeout(boundedRequestTimeout(ctx, s.timeout))

	c.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
		default:
		}
	})

	c.OnHTML("div.emproduct", func(e *colly.HTMLElement) {
		collected = append(collected, s.parseProductCard(e.DOM)...)
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = shared.NewNetworkError("cyberpuerta_scraper", "fetch_listing",
			fmt.Sprintf("request failed with status %d", r.StatusCode), err)
	})

	for page := 1; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			return collected, shared.NewTimeoutError("cyberpuerta_scraper", "scrape", "scrape deadline exceeded", ctx.Err())
		default:
		}

		s.pacer.Pace()

		url := s.listingURL(searchTerm, page)
		before := len(collected)
		if err := c.Visit(url); err != nil {
			s.logger.WithFields(logrus.Fields{
				"retailer": RetailerCyberpuerta,
				"page":     page,
				"error":    err,
			}).Warn("Listing fetch failed, stopping pagination")
			break
		}
		if scrapeErr != nil {
			s.logger.WithFields(logrus.Fields{
				"retailer": RetailerCyberpuerta,
				"page":     page,
				"error":    scrapeErr,
			}).Warn("Listing fetch errored, stopping pagination")
			break
		}
		// empty page means we paged past the last result
		if len(collected) == before {
			break
		}
	}

	results := filterRawObservations(RetailerCyberpuerta, collected, cyberpuertaLinkRegex)
	s.logger.WithFields(logrus.Fields{
		"retailer":      RetailerCyberpuerta,
		"term":          searchTerm,
		"raw_items":     len(collected),
		"usable_items":  len(results),
		"total_fetches": s.pacer.FetchCount(),
	}).Info("Completed retailer scrape")

	return results, nil
}

func (s *CyberpuertaScraper) listingURL(searchTerm string, page int) string {
	query := strings.ReplaceAll(strings.TrimSpace(searchTerm), " ", "+")
	if page == 1 {
		return fmt.Sprintf("https://www.cyberpuerta.mx/index.php?cl=search&searchparam=%s", query)
	}
	return fmt.Sprintf("https://www.cyberpuerta.mx/index.php?cl=search&searchparam=%s&pgNr=%d", query, page-1)
}

func (s *CyberpuertaScraper) parseProductCard(card *goquery.Selection) []models.RawObservation {
	name := strings.TrimSpace(card.Find("a.emproduct_right_title").First().Text())
	if name == "" {
		name = strings.TrimSpace(card.Find(".emproduct_right_title").First().Text())
	}

	link, _ := card.Find("a.emproduct_right_title").First().Attr("href")
	if link == "" {
		link, _ = card.Find("a").First().Attr("href")
	}

	priceText := strings.TrimSpace(card.Find(".price").First().Text())
	if priceText == "" {
		priceText = strings.TrimSpace(card.Find(".emproduct_right_price_left").First().Text())
	}
	price, ok := parseLocalePrice(priceText)
	if !ok {
		return nil
	}

	stock := models.StockUnknown
	availability := strings.ToLower(card.Find(".stockFlag").First().Text())
	switch {
	case strings.Contains(availability, "existencia"), strings.Contains(availability, "disponible"):
		stock = models.StockInStock
	case strings.Contains(availability, "agotado"), strings.Contains(availability, "sin existencia"):
		stock = models.StockOutOfStock
	}

	return []models.RawObservation{{
		Name:     name,
		Price:    price,
		Currency: "MXN",
		Stock:    stock,
		Link:     link,
	}}
}
