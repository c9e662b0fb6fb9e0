package calls

import (
	"testing"
	"time"

	"github.com/matheus3301/crmsync/internal/model"
	"github.com/robfig/cron/v3"
)

func TestScheduleRolloverDefaultsToMidnight(t *testing.T) {
	c := cron.New()
	id, err := ScheduleRollover(c, "", func() {})
	if err != nil {
		t.Fatalf("ScheduleRollover() error = %v", err)
	}
	entry := c.Entry(id)
	from := time.Date(2026, 3, 10, 15, 4, 0, 0, time.Local)
	next := entry.Schedule.Next(from)
	want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next run = %v, want %v", next, want)
	}
}

func TestScheduleRolloverBadSpec(t *testing.T) {
	if _, err := ScheduleRollover(cron.New(), "not a spec", func() {}); err == nil {
		t.Error("ScheduleRollover() accepted an invalid spec")
	}
}

func TestScheduledRolloverRuns(t *testing.T) {
	a := NewAggregator()
	day := time.Date(2026, 3, 10, 23, 0, 0, 0, time.Local)
	a.SetClock(func() time.Time { return day })
	a.LoadGroupedSnapshot(map[string][]model.Call{
		"79000000001": {{ID: "k1", PhoneNumber: "79000000001", Status: model.CallMissed, CreatedAt: day}},
	}, model.CallStats{TotalCalls: 1, TodayCalls: 1})

	ran := make(chan struct{}, 1)
	c := cron.New(cron.WithSeconds())
	if _, err := ScheduleRollover(c, "* * * * * *", func() {
		a.SetClock(func() time.Time { return day.Add(2 * time.Hour) })
		a.RolloverDay()
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}
	c.Start()
	defer c.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("rollover job did not run")
	}
	if got := a.Stats().TodayCalls; got != 0 {
		t.Errorf("today calls after rollover = %d, want 0", got)
	}
	g, _ := a.Group("79000000001")
	if g.Today != 0 || g.Total != 1 {
		t.Errorf("group counters = %+v", g.Counters)
	}
}
