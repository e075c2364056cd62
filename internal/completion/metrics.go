package completion

import (
	"sync/atomic"
	"time"
)

// Metrics counts pipeline outcomes. All methods are safe for concurrent
// use; a nil *Metrics records nothing.
type Metrics struct {
	requests     atomic.Uint64
	accepted     atomic.Uint64
	rejected     atomic.Uint64
	abstained    atomic.Uint64
	rateLimited  atomic.Uint64
	backendError atomic.Uint64
	retries      atomic.Uint64
	retryServed  atomic.Uint64

	latencyCount   atomic.Uint64
	latencyTotalNs atomic.Int64
	latencyMaxNs   atomic.Int64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) recordRequest() {
	if m != nil {
		m.requests.Add(1)
	}
}

func (m *Metrics) recordAccepted() {
	if m != nil {
		m.accepted.Add(1)
	}
}

func (m *Metrics) recordRetry() {
	if m != nil {
		m.retries.Add(1)
	}
}

func (m *Metrics) recordRetryServed() {
	if m != nil {
		m.retryServed.Add(1)
	}
}

// recordAbstain counts err under its reason category.
func (m *Metrics) recordAbstain(err error) {
	if m == nil {
		return
	}
	switch Reason(err) {
	case "rejected":
		m.rejected.Add(1)
	case "rate-limited":
		m.rateLimited.Add(1)
	case "backend":
		m.backendError.Add(1)
	}
	m.abstained.Add(1)
}

// recordLatency records one backend round trip.
func (m *Metrics) recordLatency(d time.Duration) {
	if m == nil {
		return
	}
	ns := d.Nanoseconds()
	m.latencyCount.Add(1)
	m.latencyTotalNs.Add(ns)
	for {
		old := m.latencyMaxNs.Load()
		if ns <= old {
			break
		}
		if m.latencyMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	count := m.latencyCount.Load()
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(m.latencyTotalNs.Load() / int64(count))
	}
	return MetricsSnapshot{
		Uptime:        time.Since(m.startTime),
		Requests:      m.requests.Load(),
		Accepted:      m.accepted.Load(),
		Rejected:      m.rejected.Load(),
		Abstained:     m.abstained.Load(),
		RateLimited:   m.rateLimited.Load(),
		BackendErrors: m.backendError.Load(),
		Retries:       m.retries.Load(),
		RetriesServed: m.retryServed.Load(),
		BackendCalls:  count,
		AvgLatency:    avg,
		MaxLatency:    time.Duration(m.latencyMaxNs.Load()),
	}
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.requests.Store(0)
	m.accepted.Store(0)
	m.rejected.Store(0)
	m.abstained.Store(0)
	m.rateLimited.Store(0)
	m.backendError.Store(0)
	m.retries.Store(0)
	m.retryServed.Store(0)
	m.latencyCount.Store(0)
	m.latencyTotalNs.Store(0)
	m.latencyMaxNs.Store(0)
	m.startTime = time.Now()
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime        time.Duration
	Requests      uint64
	Accepted      uint64
	Rejected      uint64
	Abstained     uint64
	RateLimited   uint64
	BackendErrors uint64
	Retries       uint64
	RetriesServed uint64
	BackendCalls  uint64
	AvgLatency    time.Duration
	MaxLatency    time.Duration
}

// AcceptRate returns the percentage of requests that produced a
// suggestion.
func (s MetricsSnapshot) AcceptRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Requests) * 100
}
