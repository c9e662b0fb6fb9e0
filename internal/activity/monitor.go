package activity

import (
	"sync"
	"time"
)

// DefaultWindow is how long after the last interaction a user still counts as active.
const DefaultWindow = 5 * time.Minute

// Monitor tracks UI visibility and the last user interaction reported by the
// connected client. Reads are pure; writes come from the ReportActivity RPC.
type Monitor struct {
	mu           sync.RWMutex
	visible      bool
	lastActivity time.Time
	now          func() time.Time
}

// NewMonitor creates a monitor that starts visible with no recorded activity.
func NewMonitor() *Monitor {
	return &Monitor{visible: true, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetVisible records whether the UI is currently shown to the operator.
func (m *Monitor) SetVisible(visible bool) {
	m.mu.Lock()
	m.visible = visible
	m.mu.Unlock()
}

// Touch records a user interaction at the given instant. Older instants are ignored.
func (m *Monitor) Touch(at time.Time) {
	m.mu.Lock()
	if at.After(m.lastActivity) {
		m.lastActivity = at
	}
	m.mu.Unlock()
}

// IsPageVisible reports the last known visibility.
func (m *Monitor) IsPageVisible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visible
}

// IsUserActive reports whether the last interaction happened within window.
// A window <= 0 means DefaultWindow. With no recorded interaction the user is
// considered active so a brand-new session is not starved.
func (m *Monitor) IsUserActive(window time.Duration) bool {
	if window <= 0 {
		window = DefaultWindow
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastActivity.IsZero() {
		return true
	}
	return m.now().Sub(m.lastActivity) < window
}

// Signal returns the visibility/last-activity pair read by the scheduler.
func (m *Monitor) Signal() (visible bool, lastActivityAt time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visible, m.lastActivity
}
