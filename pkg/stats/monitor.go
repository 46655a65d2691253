// Package stats samples connection quality counters while a session is
// streaming. It is purely observational.
package stats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-xrstream/pkg/session"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 100 * time.Millisecond

// Source yields connection counters. It returns session.ErrNotStreaming
// while no session is streaming.
type Source interface {
	ConnectionStats() (session.ConnectionStats, error)
}

// Publisher receives every sample.
type Publisher interface {
	PublishStats(Sample)
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(Sample)

// PublishStats calls f(s).
func (f PublisherFunc) PublishStats(s Sample) { f(s) }

// Sample is one timestamped reading.
type Sample struct {
	At time.Time `json:"at"`
	session.ConnectionStats
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the sampling period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithPublisher adds a publisher.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) {
		m.publishers = append(m.publishers, p)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor polls a Source on a fixed interval.
type Monitor struct {
	src        Source
	interval   time.Duration
	publishers []Publisher
	logger     *slog.Logger
	errLog     rate.Sometimes

	mu      sync.RWMutex
	latest  Sample
	has     bool
	samples int64
	failed  int64
}

// NewMonitor creates a Monitor for src.
func NewMonitor(src Source, opts ...Option) *Monitor {
	m := &Monitor{
		src:      src,
		interval: DefaultInterval,
		logger:   slog.Default(),
		errLog:   rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run samples until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.Sample(now)
		}
	}
}

// Sample takes one reading. It reports whether a reading was recorded.
func (m *Monitor) Sample(now time.Time) bool {
	cs, err := m.src.ConnectionStats()
	if errors.Is(err, session.ErrNotStreaming) {
		return false
	}
	if err != nil {
		m.mu.Lock()
		m.failed++
		m.mu.Unlock()
		m.errLog.Do(func() {
			m.logger.Error("get connection stats failed", "error", err)
		})
		return false
	}

	s := Sample{At: now, ConnectionStats: cs}
	m.mu.Lock()
	m.latest = s
	m.has = true
	m.samples++
	m.mu.Unlock()

	m.logger.Debug("connection stats",
		"fps", cs.FramesPerSecond,
		"delivery_ms", cs.FrameDeliveryTimeMs,
		"queue_ms", cs.FrameQueueTimeMs,
		"latch_ms", cs.FrameLatchTimeMs,
		"bandwidth_kbps", cs.BandwidthAvailableKbps,
		"utilization_kbps", cs.BandwidthUtilizationKbps,
		"utilization_pct", cs.BandwidthUtilizationPct,
		"rtt_ms", cs.RoundTripDelayMs,
		"jitter_us", cs.JitterUs,
		"received", cs.TotalPacketsReceived,
		"lost", cs.TotalPacketsLost,
		"dropped", cs.TotalPacketsDropped,
		"quality", cs.Quality,
		"quality_reasons", cs.QualityReasons,
	)

	for _, p := range m.publishers {
		p.PublishStats(s)
	}
	return true
}

// Latest returns the most recent sample, if any.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.has
}

// Counts returns the number of samples recorded and fetch errors seen.
func (m *Monitor) Counts() (samples, errs int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.samples, m.failed
}
