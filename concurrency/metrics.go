// concurrency/metrics.go
package concurrency

import (
	"sync"
	"time"
)

// Metrics captures counters for the authenticated request pipeline.
type Metrics struct {
	lock sync.Mutex

	TotalRequests        int64         // Attempts sent over the network, replays included
	TotalRetries         int64         // Replays after a refresh
	TotalRefreshRequests int64         // Refreshes asked of the token source, coalesced ones included
	TotalAuthFailures    int64         // Responses carrying the authorization-failure status
	TotalTerminalAuth    int64         // Requests that ended in a terminal authorization failure
	TotalTransportErrs   int64         // Network errors
	PermitWaitTime       time.Duration // Total time spent waiting for permits
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalRequests        int64
	TotalRetries         int64
	TotalRefreshRequests int64
	TotalAuthFailures    int64
	TotalTerminalAuth    int64
	TotalTransportErrs   int64
	PermitWaitTime       time.Duration
}

func (m *Metrics) add(fn func(*Metrics)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	fn(m)
}

// RecordRequest counts one attempt.
func (m *Metrics) RecordRequest() { m.add(func(m *Metrics) { m.TotalRequests++ }) }

// RecordRetry counts one replay.
func (m *Metrics) RecordRetry() { m.add(func(m *Metrics) { m.TotalRetries++ }) }

// RecordRefreshRequest counts one refresh the pipeline asked the token source for. The source may
// satisfy it without an identity provider round trip.
func (m *Metrics) RecordRefreshRequest() { m.add(func(m *Metrics) { m.TotalRefreshRequests++ }) }

// RecordAuthFailure counts one authorization-failure response.
func (m *Metrics) RecordAuthFailure() { m.add(func(m *Metrics) { m.TotalAuthFailures++ }) }

// RecordTerminalAuth counts one terminal authorization failure.
func (m *Metrics) RecordTerminalAuth() { m.add(func(m *Metrics) { m.TotalTerminalAuth++ }) }

// RecordTransportError counts one network error.
func (m *Metrics) RecordTransportError() { m.add(func(m *Metrics) { m.TotalTransportErrs++ }) }

func (m *Metrics) addPermitWait(d time.Duration) { m.add(func(m *Metrics) { m.PermitWaitTime += d }) }

// Snapshot returns a copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	return MetricsSnapshot{
		TotalRequests:        m.TotalRequests,
		TotalRetries:         m.TotalRetries,
		TotalRefreshRequests: m.TotalRefreshRequests,
		TotalAuthFailures:    m.TotalAuthFailures,
		TotalTerminalAuth:    m.TotalTerminalAuth,
		TotalTransportErrs:   m.TotalTransportErrs,
		PermitWaitTime:       m.PermitWaitTime,
	}
}
