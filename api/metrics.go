package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertGuessingSpike AlertType = "guessing_spike"
	AlertVaultBurst    AlertType = "vault_burst"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// slidingWindow counts events over a trailing time window.
type slidingWindow struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the in-window count when it
// reaches the threshold. The window is cleared after firing so one spike
// raises one alert.
func (s *slidingWindow) add(now time.Time) (int, bool) {
	s.times = append(s.times, now)
	s.times = trimWindow(s.times, now, s.window)
	n := len(s.times)
	if n < s.threshold {
		return n, false
	}
	s.times = s.times[:0]
	return n, true
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	// Incorrect answers across all sessions.
	incorrect slidingWindow
	// Vaults opened across all sessions.
	opened slidingWindow

	now     func() time.Time
	alertFn AlertFunc
}

const (
	defaultGuessWindow    = 1 * time.Minute
	defaultGuessThreshold = 200
	defaultVaultWindow    = 10 * time.Minute
	defaultVaultThreshold = 20
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		incorrect: slidingWindow{window: defaultGuessWindow, threshold: defaultGuessThreshold},
		opened:    slidingWindow{window: defaultVaultWindow, threshold: defaultVaultThreshold},
		now:       time.Now,
		alertFn:   alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditAnswerIncorrect:
		m.record(&m.incorrect, AlertGuessingSpike, "incorrect answer rate exceeds threshold")
	case AuditVaultOpened:
		m.record(&m.opened, AlertVaultBurst, "vault open rate exceeds threshold")
	}
}

func (m *metricsCollector) record(w *slidingWindow, typ AlertType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count, fire := w.add(now)
	if !fire {
		return
	}
	m.alertFn(AlertEvent{
		Type:      typ,
		Message:   msg,
		Count:     count,
		Threshold: w.threshold,
		Timestamp: now,
	})
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
