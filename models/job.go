package models

import (
	"encoding/json"
	"fmt"
)

// RefreshJob asks the worker pool to re-scrape prices for a set of components
// in one country. The wire format is JSON; unknown fields are tolerated for
// forward compatibility.
type RefreshJob struct {
	ComponentIDs []int    `json:"component_ids"`
	Country      string   `json:"country"`
	Retailers    []string `json:"retailers,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

// Encode serializes the job for the queue.
func (j RefreshJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// RefreshRequest is the HTTP refresh endpoint body. Unlike the queue wire
// format it carries a country list; the handler fans it out into one
// RefreshJob per country. A singular `country` field is accepted as a
// one-element list.
type RefreshRequest struct {
	ComponentIDs []int    `json:"component_ids"`
	Countries    []string `json:"countries"`
	Country      string   `json:"country,omitempty"`
	Retailers    []string `json:"retailers,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

// Jobs expands the request into one queue job per country.
func (r RefreshRequest) Jobs() []RefreshJob {
	jobs := make([]RefreshJob, 0, len(r.Countries))
	for _, country := range r.Countries {
		jobs = append(jobs, RefreshJob{
			ComponentIDs: r.ComponentIDs,
			Country:      country,
			Retailers:    r.Retailers,
			Force:        r.Force,
		})
	}
	return jobs
}

// ParseRefreshRequest decodes and validates an HTTP refresh body.
func ParseRefreshRequest(body []byte) (*RefreshRequest, error) {
	var req RefreshRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid refresh request payload: %w", err)
	}

	if len(req.ComponentIDs) == 0 {
		return nil, fmt.Errorf("refresh request has no component ids")
	}
	for _, id := range req.ComponentIDs {
		if id <= 0 {
			return nil, fmt.Errorf("refresh request has invalid component id %d", id)
		}
	}

	if len(req.Countries) == 0 && req.Country != "" {
		req.Countries = []string{req.Country}
	}
	if len(req.Countries) == 0 {
		return nil, fmt.Errorf("refresh request has no countries")
	}
	for _, country := range req.Countries {
		if country == "" {
			return nil, fmt.Errorf("refresh request has an empty country code")
		}
	}

	return &req, nil
}

// ParseRefreshJob decodes and validates a queue message body. A non-nil error
// means the message is malformed and must be dead-lettered, not retried.
func ParseRefreshJob(body []byte) (*RefreshJob, error) {
	var job RefreshJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("invalid refresh job payload: %w", err)
	}

	if len(job.ComponentIDs) == 0 {
		return nil, fmt.Errorf("refresh job has no component ids")
	}
	for _, id := range job.ComponentIDs {
		if id <= 0 {
			return nil, fmt.Errorf("refresh job has invalid component id %d", id)
		}
	}
	if job.Country == "" {
		return nil, fmt.Errorf("refresh job has no country code")
	}

	return &job, nil
}
