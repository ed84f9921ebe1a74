package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewNetworkError("svc", "op", "timeout", nil)))
	assert.True(t, IsRetryable(NewDatabaseError("svc", "op", "deadlock", nil)))
	assert.False(t, IsRetryable(NewValidationError("svc", "op", "bad input")))
	assert.False(t, IsRetryable(NewResourceError("svc", "op", "pool exhausted")))

	assert.True(t, IsRetryable(errors.New("plain error")), "unknown errors default to retryable")

	wrapped := fmt.Errorf("context: %w", NewValidationError("svc", "op", "bad input"))
	assert.False(t, IsRetryable(wrapped), "retryability survives wrapping")
}

func TestBuildBatchErrorSummary(t *testing.T) {
	summary := BuildBatchErrorSummary(3, 0, nil)
	assert.Equal(t, "batch completed with 3 succeeded, 0 failed", summary)

	summary = BuildBatchErrorSummary(1, 2, []error{
		errors.New("first failure"),
		errors.New("second failure"),
	})
	assert.Contains(t, summary, "1 succeeded, 2 failed")
	assert.Contains(t, summary, "first failure")
	assert.Contains(t, summary, "second failure")
}

func TestBuildBatchErrorSummaryTruncatesSamples(t *testing.T) {
	var sampleErrors []error
	for i := 0; i < 5; i++ {
		sampleErrors = append(sampleErrors, fmt.Errorf("failure %d", i))
	}

	summary := BuildBatchErrorSummary(0, 5, sampleErrors)

	assert.Contains(t, summary, "failure 0")
	assert.Contains(t, summary, "failure 2")
	assert.NotContains(t, summary, "failure 3")
	assert.Contains(t, summary, "(+2 more)")
}
