package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/database"
	"github.com/UlisesFTP/pconstruct-pricing/services"
)

// AdminHandler exposes operational views: queue depth, scraper counters and
// database pool stats.
type AdminHandler struct {
	queue       *services.RefreshQueue
	coordinator *services.ScrapeCoordinator
	store       *services.PriceStore
	logger      *logrus.Logger
}

func NewAdminHandler(queue *services.RefreshQueue, coordinator *services.ScrapeCoordinator, store *services.PriceStore) *AdminHandler {
	return &AdminHandler{
		queue:       queue,
		coordinator: coordinator,
		store:       store,
		logger:      logrus.New(),
	}
}

// GetQueueStats handles GET /api/v1/admin/queue/stats.
func (h *AdminHandler) GetQueueStats(c *fiber.Ctx) error {
	stats, err := h.queue.Stats(c.Context())
	if err != nil {
		h.logger.WithFields(logrus.Fields{"error": err}).Error("Queue stats read failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "queue unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// GetServiceStats handles GET /api/v1/admin/stats.
func (h *AdminHandler) GetServiceStats(c *fiber.Ctx) error {
	var latestObserved string
	if latest, err := h.store.LatestObservedAt(c.Context()); err != nil {
		h.logger.WithFields(logrus.Fields{"error": err}).Warn("Latest observation lookup failed")
	} else if !latest.IsZero() {
		latestObserved = latest.Format(time.RFC3339)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"scrapers":           h.coordinator.MetricsSnapshot(),
			"database":           database.GetConnectionStats(),
			"latest_observed_at": latestObserved,
		},
	})
}
