package shared

import (
	"sync"
	"time"
)

// ServiceMetrics tracks request counts and timing for one service. The
// coordinator keeps one per retailer; snapshots are exposed on the admin
// stats endpoint.
type ServiceMetrics struct {
	serviceName         string
	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	totalProcessingTime time.Duration
	lastUpdated         time.Time
	mutex               sync.RWMutex
}

// NewServiceMetrics creates a new metrics tracker for a service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		serviceName: serviceName,
		lastUpdated: time.Now(),
	}
}

// RecordRequest records a request with its success status and processing time
func (m *ServiceMetrics) RecordRequest(success bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests++
	m.totalProcessingTime += processingTime
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}
	m.lastUpdated = time.Now()
}

// SuccessRate returns the success rate as a percentage
func (m *ServiceMetrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.successRateLocked()
}

func (m *ServiceMetrics) successRateLocked() float64 {
	if m.totalRequests == 0 {
		return 0.0
	}
	return float64(m.successfulRequests) / float64(m.totalRequests) * 100.0
}

// Snapshot returns the current metrics as a map for JSON serialization
func (m *ServiceMetrics) Snapshot() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	averageProcessingTime := time.Duration(0)
	if m.totalRequests > 0 {
		averageProcessingTime = time.Duration(int64(m.totalProcessingTime) / m.totalRequests)
	}

	return map[string]interface{}{
		"service_name":            m.serviceName,
		"total_requests":          m.totalRequests,
		"successful_requests":     m.successfulRequests,
		"failed_requests":         m.failedRequests,
		"success_rate":            m.successRateLocked(),
		"average_processing_time": averageProcessingTime.String(),
		"last_updated":            m.lastUpdated,
	}
}
