package calls

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// MidnightSpec fires at local midnight (standard 5-field cron).
const MidnightSpec = "0 0 * * *"

// ScheduleRollover registers job on c at spec, MidnightSpec when empty.
// job is usually a wrapper around Aggregator.RolloverDay that also notifies
// listeners.
func ScheduleRollover(c *cron.Cron, spec string, job func()) (cron.EntryID, error) {
	if spec == "" {
		spec = MidnightSpec
	}
	id, err := c.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("schedule rollover %q: %w", spec, err)
	}
	return id, nil
}
