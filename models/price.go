package models

import "time"

// Stock status values carried on an observation. Free text from the retailer
// page is normalized to one of these before persistence.
const (
	StockInStock    = "in_stock"
	StockOutOfStock = "out_of_stock"
	StockUnknown    = "unknown"
)

// RawObservation is a single product listing as extracted from a retailer's
// search results page, before it is tied to a component or persisted.
type RawObservation struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Stock    string  `json:"stock"`
	Link     string  `json:"link"`
}

// PriceObservation is one scraped price data point for a component. Rows are
// append-only: a new scrape inserts new rows, existing rows are never updated.
type PriceObservation struct {
	ID          string    `json:"id"`
	ComponentID int       `json:"component_id"`
	Retailer    string    `json:"retailer"`
	CountryCode string    `json:"country_code"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Stock       string    `json:"stock"`
	URL         string    `json:"url"`
	ScrapedName string    `json:"scraped_name,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// BestPriceSummary is the derived "winning" quote for a component in a
// country. Stale is recomputed from ObservedAt at every read, so a cached
// summary can flip from fresh to stale without a cache write.
type BestPriceSummary struct {
	ComponentID int       `json:"component_id"`
	Retailer    string    `json:"retailer"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	URL         string    `json:"url"`
	ObservedAt  time.Time `json:"observed_at"`
	Stale       bool      `json:"stale"`
}

// CatalogItem is one entry of an assembled catalog page: the component as the
// catalog collaborator describes it plus the resolved best price, if known.
type CatalogItem struct {
	ID        int               `json:"id"`
	Name      string            `json:"name"`
	Category  string            `json:"category"`
	BestPrice *BestPriceSummary `json:"best_price"`
}
