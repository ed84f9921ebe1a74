package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRefreshJob(t *testing.T) {
	job, err := ParseRefreshJob([]byte(`{"component_ids":[1,2,3],"country":"MX"}`))

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, job.ComponentIDs)
	assert.Equal(t, "MX", job.Country)
	assert.Empty(t, job.Retailers)
}

func TestParseRefreshJobToleratesUnknownFields(t *testing.T) {
	job, err := ParseRefreshJob([]byte(`{"component_ids":[7],"country":"MX","requested_by":"gateway","priority":3}`))

	require.NoError(t, err)
	assert.Equal(t, []int{7}, job.ComponentIDs)
}

func TestParseRefreshJobRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"empty ids", `{"component_ids":[],"country":"MX"}`},
		{"missing ids", `{"country":"MX"}`},
		{"non positive id", `{"component_ids":[0],"country":"MX"}`},
		{"negative id", `{"component_ids":[-5],"country":"MX"}`},
		{"missing country", `{"component_ids":[1]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRefreshJob([]byte(tc.body))
			assert.Error(t, err)
		})
	}
}

func TestParseRefreshRequestAcceptsCountriesList(t *testing.T) {
	req, err := ParseRefreshRequest([]byte(`{"component_ids":[42],"countries":["MX"]}`))

	require.NoError(t, err)
	assert.Equal(t, []int{42}, req.ComponentIDs)
	assert.Equal(t, []string{"MX"}, req.Countries)

	jobs := req.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "MX", jobs[0].Country)
}

func TestParseRefreshRequestFansOutPerCountry(t *testing.T) {
	req, err := ParseRefreshRequest([]byte(`{"component_ids":[1,2],"countries":["MX","US"],"force":true}`))

	require.NoError(t, err)
	jobs := req.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "MX", jobs[0].Country)
	assert.Equal(t, "US", jobs[1].Country)
	for _, job := range jobs {
		assert.Equal(t, []int{1, 2}, job.ComponentIDs)
		assert.True(t, job.Force)
	}
}

func TestParseRefreshRequestAcceptsSingularCountry(t *testing.T) {
	req, err := ParseRefreshRequest([]byte(`{"component_ids":[7],"country":"MX"}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"MX"}, req.Countries)
}

func TestParseRefreshRequestRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "nope"},
		{"no ids", `{"countries":["MX"]}`},
		{"bad id", `{"component_ids":[0],"countries":["MX"]}`},
		{"no countries", `{"component_ids":[1]}`},
		{"empty country code", `{"component_ids":[1],"countries":[""]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRefreshRequest([]byte(tc.body))
			assert.Error(t, err)
		})
	}
}

func TestRefreshJobRoundTrip(t *testing.T) {
	original := RefreshJob{ComponentIDs: []int{42}, Country: "MX", Retailers: []string{"amazon"}}

	body, err := original.Encode()
	require.NoError(t, err)

	decoded, err := ParseRefreshJob(body)
	require.NoError(t, err)
	assert.Equal(t, original, *decoded)
}
