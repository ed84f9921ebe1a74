package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/services"
)

// CatalogHandler serves the assembled catalog read path, components enriched
// with their current best prices.
type CatalogHandler struct {
	assembler      *services.PriceAssembler
	defaultCountry string
	logger         *logrus.Logger
}

func NewCatalogHandler(assembler *services.PriceAssembler, defaultCountry string) *CatalogHandler {
	return &CatalogHandler{
		assembler:      assembler,
		defaultCountry: defaultCountry,
		logger:         logrus.New(),
	}
}

// GetComponents handles GET /api/v1/catalog/components. Pagination and
// category filters pass through to the catalog service; max_price filters the
// assembled page without ever excluding items whose price is unknown.
func (h *CatalogHandler) GetComponents(c *fiber.Ctx) error {
	country := c.Query("country", h.defaultCountry)

	maxPrice := 0.0
	if raw := c.Query("max_price"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "max_price must be a positive number",
			})
		}
		maxPrice = parsed
	}

	params := map[string]string{}
	for _, key := range []string{"category", "page", "page_size", "search"} {
		if value := c.Query(key); value != "" {
			params[key] = value
		}
	}

	items, err := h.assembler.AssemblePage(c.Context(), country, maxPrice, params)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"country": country,
			"error":   err,
		}).Error("Catalog assembly failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   "catalog service unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    items,
		"count":   len(items),
	})
}
