package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/services"
	"github.com/UlisesFTP/pconstruct-pricing/shared"
)

// PriceHandler exposes the best price read path and the refresh endpoint.
type PriceHandler struct {
	assembler      *services.PriceAssembler
	dispatcher     *services.RefreshDispatcher
	store          *services.PriceStore
	defaultCountry string
	logger         *logrus.Logger
}

func NewPriceHandler(assembler *services.PriceAssembler, dispatcher *services.RefreshDispatcher, store *services.PriceStore, defaultCountry string) *PriceHandler {
	return &PriceHandler{
		assembler:      assembler,
		dispatcher:     dispatcher,
		store:          store,
		defaultCountry: defaultCountry,
		logger:         logrus.New(),
	}
}

// GetBestPrice handles GET /api/v1/prices/:component_id.
// Query params: country (defaults to the configured country) and wait=true to
// allow one bounded live scrape when nothing is known yet.
func (h *PriceHandler) GetBestPrice(c *fiber.Ctx) error {
	componentID, err := strconv.Atoi(c.Params("component_id"))
	if err != nil || componentID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "component_id must be a positive integer",
		})
	}

	country := c.Query("country", h.defaultCountry)
	wait := c.Query("wait") == "true"

	var result *services.LookupResult
	if wait {
		result, err = h.assembler.LookupWait(c.Context(), componentID, country)
	} else {
		result, err = h.assembler.Lookup(c.Context(), componentID, country)
	}
	if err != nil {
		var svcErr *shared.ServiceError
		if errors.As(err, &svcErr) && svcErr.Category == shared.ErrorCategoryResource {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "scraping capacity exhausted, retry later",
			})
		}
		h.logger.WithFields(logrus.Fields{
			"component_id": componentID,
			"country":      country,
			"error":        err,
		}).Error("Best price lookup failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to look up best price",
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"data":      result.Summary,
		"source":    result.Source,
		"pending":   result.Pending,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// RequestRefresh handles POST /api/v1/prices/refresh. The body carries
// component ids and a country list; one job per country is queued and the
// request is answered with 202 before any scraping runs.
func (h *PriceHandler) RequestRefresh(c *fiber.Ctx) error {
	req, err := models.ParseRefreshRequest(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	for _, job := range req.Jobs() {
		if err := h.dispatcher.Dispatch(c.Context(), &job); err != nil {
			h.logger.WithFields(logrus.Fields{
				"components": len(job.ComponentIDs),
				"country":    job.Country,
				"error":      err,
			}).Error("Failed to queue refresh job")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error":   "failed to queue refresh job",
			})
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":    true,
		"components": len(req.ComponentIDs),
		"countries":  req.Countries,
	})
}

// GetPriceHistory handles GET /api/v1/prices/:component_id/history.
func (h *PriceHandler) GetPriceHistory(c *fiber.Ctx) error {
	componentID, err := strconv.Atoi(c.Params("component_id"))
	if err != nil || componentID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "component_id must be a positive integer",
		})
	}

	country := c.Query("country", h.defaultCountry)
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days <= 0 || days > 365 {
		days = 30
	}
	limit, _ := strconv.Atoi(c.Query("limit", "100"))

	observations, err := h.store.History(c.Context(), componentID, country, time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"component_id": componentID,
			"error":        err,
		}).Error("Price history query failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to load price history",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    observations,
		"count":   len(observations),
	})
}
