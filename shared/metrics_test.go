package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceMetricsSuccessRate(t *testing.T) {
	m := NewServiceMetrics("amazon")
	assert.Equal(t, 0.0, m.SuccessRate(), "no requests yet")

	m.RecordRequest(true, 100*time.Millisecond)
	m.RecordRequest(true, 100*time.Millisecond)
	m.RecordRequest(false, 100*time.Millisecond)

	assert.InDelta(t, 66.67, m.SuccessRate(), 0.01)
}

func TestServiceMetricsSnapshot(t *testing.T) {
	m := NewServiceMetrics("mercadolibre")
	m.RecordRequest(true, 200*time.Millisecond)
	m.RecordRequest(false, 400*time.Millisecond)

	snapshot := m.Snapshot()

	assert.Equal(t, "mercadolibre", snapshot["service_name"])
	assert.Equal(t, int64(2), snapshot["total_requests"])
	assert.Equal(t, int64(1), snapshot["failed_requests"])
	assert.Equal(t, "300ms", snapshot["average_processing_time"])

	rate, ok := snapshot["success_rate"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 50.0, rate, 0.01)
}
