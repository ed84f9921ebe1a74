package services

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// CatalogClient talks to the component catalog collaborator over HTTP. The
// catalog owns component identity; this service only enriches it with prices.
type CatalogClient struct {
	http   *resty.Client
	logger *logrus.Logger
}

func NewCatalogClient(baseURL string) *CatalogClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(2).
		SetHeader("Accept", "application/json")

	return &CatalogClient{
		http:   client,
		logger: logrus.New(),
	}
}

// ComponentName resolves a component id to its canonical display name.
func (c *CatalogClient) ComponentName(ctx context.Context, componentID int) (string, error) {
	var component models.Component

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&component).
		Get(fmt.Sprintf("/api/v1/components/%d", componentID))
	if err != nil {
		return "", shared.NewNetworkError("catalog_client", "component_name", "catalog request failed", err)
	}
	if resp.StatusCode() == 404 {
		return "", shared.NewValidationError("catalog_client", "component_name",
			fmt.Sprintf("component %d does not exist", componentID))
	}
	if resp.IsError() {
		return "", shared.NewNetworkError("catalog_client", "component_name",
			fmt.Sprintf("catalog returned status %d", resp.StatusCode()), nil)
	}
	if component.Name == "" {
		return "", shared.NewValidationError("catalog_client", "component_name",
			fmt.Sprintf("catalog returned empty name for component %d", componentID))
	}
	return component.Name, nil
}

// Components fetches a catalog page, passing pagination and filter parameters
// through unchanged.
func (c *CatalogClient) Components(ctx context.Context, params map[string]string) ([]models.Component, error) {
	var components []models.Component

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&components).
		Get("/api/v1/components")
	if err != nil {
		return nil, shared.NewNetworkError("catalog_client", "components", "catalog request failed", err)
	}
	if resp.IsError() {
		return nil, shared.NewNetworkError("catalog_client", "components",
			fmt.Sprintf("catalog returned status %d", resp.StatusCode()), nil)
	}

	c.logger.WithFields(logrus.Fields{"count": len(components)}).Debug("Fetched catalog page")
	return components, nil
}
