package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScrapePacer enforces a minimum delay between page fetches against one
// retailer so the scrapers stay polite. Thread-safe; one pacer is shared by
// all scrape tasks for a retailer.
type ScrapePacer struct {
	minimumDelay  time.Duration
	lastFetchTime time.Time
	mutex         sync.Mutex
	fetchCount    int64
}

// NewScrapePacer creates a pacer with the specified minimum delay
func NewScrapePacer(minimumDelay time.Duration) *ScrapePacer {
	return &ScrapePacer{
		minimumDelay:  minimumDelay,
		lastFetchTime: time.Now().Add(-minimumDelay),
	}
}

// Pace blocks until the minimum delay has elapsed since the last fetch
func (p *ScrapePacer) Pace() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	elapsed := time.Since(p.lastFetchTime)
	if elapsed < p.minimumDelay {
		remaining := p.minimumDelay - elapsed

		logrus.WithFields(logrus.Fields{
			"component":       "ScrapePacer",
			"elapsed_time":    elapsed,
			"minimum_delay":   p.minimumDelay,
			"remaining_delay": remaining,
			"fetch_count":     p.fetchCount + 1,
		}).Debug("Enforcing politeness delay")

		time.Sleep(remaining)
	}

	p.lastFetchTime = time.Now()
	p.fetchCount++
}

// FetchCount returns the total number of paced fetches
func (p *ScrapePacer) FetchCount() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.fetchCount
}
