package model

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/crmsync/internal/api"
)

// DefaultActivityInterval bounds how often keystrokes are reported.
const DefaultActivityInterval = 15 * time.Second

// ActivityReporter forwards visibility and interaction signals to the daemon.
// Interactions are throttled; visibility changes are always sent.
type ActivityReporter struct {
	client   Daemon
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewActivityReporter creates a reporter sending at most one interaction per interval.
func NewActivityReporter(c Daemon, interval time.Duration) *ActivityReporter {
	if interval <= 0 {
		interval = DefaultActivityInterval
	}
	return &ActivityReporter{client: c, interval: interval, now: time.Now}
}

// Touch records an interaction. It reports whether a request was sent.
func (r *ActivityReporter) Touch(ctx context.Context) (bool, error) {
	now := r.now()
	r.mu.Lock()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return false, nil
	}
	r.last = now
	r.mu.Unlock()
	return true, r.client.ReportActivity(ctx, &api.ReportActivityRequest{ActivityAtUnixMs: now.UnixMilli()})
}

// SetVisible reports visibility. Becoming visible also counts as an interaction.
func (r *ActivityReporter) SetVisible(ctx context.Context, visible bool) error {
	req := &api.ReportActivityRequest{Visible: &visible}
	if visible {
		now := r.now()
		req.ActivityAtUnixMs = now.UnixMilli()
		r.mu.Lock()
		r.last = now
		r.mu.Unlock()
	}
	return r.client.ReportActivity(ctx, req)
}
