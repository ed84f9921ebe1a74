package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
	ErrorCategoryResource      ErrorCategory = "resource"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
)

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// NewNetworkError creates a retryable network error
func NewNetworkError(serviceName, operation, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryNetwork, "NETWORK_FAILURE", message, serviceName, operation, true, cause)
}

// NewDatabaseError creates a retryable database error
func NewDatabaseError(serviceName, operation, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryDatabase, "DATABASE_FAILURE", message, serviceName, operation, true, cause)
}

// NewValidationError creates a non-retryable validation error
func NewValidationError(serviceName, operation, message string) *ServiceError {
	return NewServiceError(ErrorCategoryValidation, "INVALID_INPUT", message, serviceName, operation, false, nil)
}

// NewResourceError creates a resource exhaustion error. The caller may try
// again later, but the retry policy does not spin on it.
func NewResourceError(serviceName, operation, message string) *ServiceError {
	return NewServiceError(ErrorCategoryResource, "RESOURCE_EXHAUSTED", message, serviceName, operation, false, nil)
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(serviceName, operation, message string, cause error) *ServiceError {
	return NewServiceError(ErrorCategoryTimeout, "TIMEOUT", message, serviceName, operation, true, cause)
}

// IsRetryable reports whether an arbitrary error is worth retrying. Errors
// outside the ServiceError taxonomy are treated as retryable so transient
// driver and network failures are not dropped on the first attempt.
func IsRetryable(err error) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Retryable
	}
	return true
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}

// BuildBatchErrorSummary builds a compact summary for a batch of operations
// where some items failed, so the caller can emit a single log line instead
// of one line per failure.
func BuildBatchErrorSummary(successCount, failureCount int, sampleErrors []error) string {
	var summary strings.Builder

	summary.WriteString(fmt.Sprintf("batch completed with %d succeeded, %d failed", successCount, failureCount))

	if len(sampleErrors) > 0 {
		summary.WriteString("; sample errors: ")
		for i, err := range sampleErrors {
			if i >= 3 {
				summary.WriteString(fmt.Sprintf(" (+%d more)", len(sampleErrors)-i))
				break
			}
			if i > 0 {
				summary.WriteString("; ")
			}
			summary.WriteString(err.Error())
		}
	}

	return summary.String()
}
