package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UlisesFTP/pconstruct-pricing/models"
	"github.com/UlisesFTP/pconstruct-pricing/services"
)

type capturingPublisher struct {
	bodies [][]byte
}

func (p *capturingPublisher) Publish(_ context.Context, body []byte) error {
	p.bodies = append(p.bodies, body)
	return nil
}

func refreshTestApp(publisher *capturingPublisher) *fiber.App {
	dispatcher := services.NewRefreshDispatcher(publisher)
	handler := NewPriceHandler(nil, dispatcher, nil, "MX")

	app := fiber.New()
	app.Post("/api/v1/prices/refresh", handler.RequestRefresh)
	return app
}

func TestRequestRefreshAcceptsCountriesList(t *testing.T) {
	publisher := &capturingPublisher{}
	app := refreshTestApp(publisher)

	req := httptest.NewRequest("POST", "/api/v1/prices/refresh",
		strings.NewReader(`{"component_ids":[42],"countries":["MX"]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	require.Len(t, publisher.bodies, 1)
	job, err := models.ParseRefreshJob(publisher.bodies[0])
	require.NoError(t, err, "queued payload must stay on the singular wire format")
	assert.Equal(t, []int{42}, job.ComponentIDs)
	assert.Equal(t, "MX", job.Country)
}

func TestRequestRefreshQueuesOneJobPerCountry(t *testing.T) {
	publisher := &capturingPublisher{}
	app := refreshTestApp(publisher)

	req := httptest.NewRequest("POST", "/api/v1/prices/refresh",
		strings.NewReader(`{"component_ids":[1,2],"countries":["MX","US"]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	require.Len(t, publisher.bodies, 2)
	countries := make([]string, 0, 2)
	for _, body := range publisher.bodies {
		job, parseErr := models.ParseRefreshJob(body)
		require.NoError(t, parseErr)
		countries = append(countries, job.Country)
	}
	assert.Equal(t, []string{"MX", "US"}, countries)
}

func TestRequestRefreshRejectsInvalidBodies(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "nope"},
		{"empty ids", `{"component_ids":[],"countries":["MX"]}`},
		{"no countries", `{"component_ids":[1]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			publisher := &capturingPublisher{}
			app := refreshTestApp(publisher)

			req := httptest.NewRequest("POST", "/api/v1/prices/refresh", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, publisher.bodies)
		})
	}
}
