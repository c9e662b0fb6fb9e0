package calls

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/crmsync/internal/model"
)

// Counters are derived from a group's calls; they are never stored apart from them.
type Counters struct {
	Total    int `json:"total"`
	Missed   int `json:"missed_calls"`
	Answered int `json:"answered_calls"`
	Today    int `json:"today_calls"`
}

// Group is all calls sharing one normalized phone number, newest first.
type Group struct {
	PhoneNumber string       `json:"phone_number"`
	Calls       []model.Call `json:"calls"`
	Counters
}

// Count derives counters from calls relative to the local day of now.
func Count(calls []model.Call, now time.Time) Counters {
	var c Counters
	y, m, d := now.Date()
	for _, call := range calls {
		c.Total++
		switch call.Status {
		case model.CallMissed:
			c.Missed++
		case model.CallAnswered:
			c.Answered++
		}
		cy, cm, cd := call.CreatedAt.In(now.Location()).Date()
		if cy == y && cm == m && cd == d {
			c.Today++
		}
	}
	return c
}

// NormalizePhone keeps digits only and rewrites the domestic 8-prefix to 7.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) == 11 && s[0] == '8' {
		s = "7" + s[1:]
	}
	return s
}

// Aggregator is the authoritative in-memory grouped-calls state.
type Aggregator struct {
	mu        sync.RWMutex
	groups    map[string]*Group
	stats     model.CallStats
	newCalls  int
	lastTotal int
	loaded    bool
	now       func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{groups: make(map[string]*Group), now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// LoadGroupedSnapshot replaces all groups. Growth of stats.TotalCalls since
// the previous snapshot raises the new-calls badge, except on the first load.
func (a *Aggregator) LoadGroupedSnapshot(groups map[string][]model.Call, stats model.CallStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	next := make(map[string]*Group, len(groups))
	for phone, calls := range groups {
		key := NormalizePhone(phone)
		if key == "" {
			continue
		}
		g, ok := next[key]
		if !ok {
			g = &Group{PhoneNumber: key}
			next[key] = g
		}
		g.Calls = append(g.Calls, calls...)
	}
	for _, g := range next {
		sortCalls(g.Calls)
		g.Counters = Count(g.Calls, now)
	}
	a.groups = next
	a.stats = stats

	if !a.loaded {
		a.loaded = true
	} else if delta := stats.TotalCalls - a.lastTotal; delta > 0 {
		a.newCalls += delta
	}
	a.lastTotal = stats.TotalCalls
}

// ApplyNewCall prepends call to its group, creating the group if needed, and
// bumps the badge. A call id that is already known is applied as an update.
// It reports whether the call was new.
func (a *Aggregator) ApplyNewCall(call model.Call) bool {
	key := NormalizePhone(call.PhoneNumber)
	if key == "" || call.ID == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[key]
	if !ok {
		g = &Group{PhoneNumber: key}
		a.groups[key] = g
	}
	if i := indexOf(g.Calls, call.ID); i >= 0 {
		prev := g.Calls[i]
		g.Calls[i] = call
		g.Counters = Count(g.Calls, a.now())
		a.adjustStats(prev.Status, -1)
		a.adjustStats(call.Status, +1)
		return false
	}
	g.Calls = append([]model.Call{call}, g.Calls...)
	g.Counters = Count(g.Calls, a.now())

	a.newCalls++
	// The next snapshot already includes this call; keep it out of the delta.
	a.lastTotal++
	a.stats.TotalCalls++
	switch call.Status {
	case model.CallMissed:
		a.stats.MissedCalls++
	case model.CallAnswered:
		a.stats.AnsweredCalls++
	}
	return true
}

// ApplyCallUpdate replaces a known call in place. It reports whether the call was found.
func (a *Aggregator) ApplyCallUpdate(call model.Call) bool {
	key := NormalizePhone(call.PhoneNumber)
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.groups[key]
	if !ok {
		return false
	}
	i := indexOf(g.Calls, call.ID)
	if i < 0 {
		return false
	}
	prev := g.Calls[i]
	g.Calls[i] = call
	g.Counters = Count(g.Calls, a.now())
	a.adjustStats(prev.Status, -1)
	a.adjustStats(call.Status, +1)
	return true
}

// ResetNewCallsCount clears the badge; called when the operator opens the calls view.
func (a *Aggregator) ResetNewCallsCount() {
	a.mu.Lock()
	a.newCalls = 0
	a.mu.Unlock()
}

// NewCallsCount returns the badge value.
func (a *Aggregator) NewCallsCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.newCalls
}

// Stats returns the aggregate numbers of the last snapshot adjusted by live calls.
func (a *Aggregator) Stats() model.CallStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Group returns a copy of one group.
func (a *Aggregator) Group(phone string) (Group, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	g, ok := a.groups[NormalizePhone(phone)]
	if !ok {
		return Group{}, false
	}
	return cloneGroup(g), true
}

// Groups returns copies of all groups, most recent call first.
func (a *Aggregator) Groups() []Group {
	a.mu.RLock()
	out := make([]Group, 0, len(a.groups))
	for _, g := range a.groups {
		out = append(out, cloneGroup(g))
	}
	a.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		li, lj := latest(out[i]), latest(out[j])
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return out[i].PhoneNumber < out[j].PhoneNumber
	})
	return out
}

// RolloverDay recomputes every group's counters so Today follows the clock.
func (a *Aggregator) RolloverDay() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	today := 0
	for _, g := range a.groups {
		g.Counters = Count(g.Calls, now)
		today += g.Today
	}
	a.stats.TodayCalls = today
}

func (a *Aggregator) adjustStats(status model.CallStatus, d int) {
	switch status {
	case model.CallMissed:
		a.stats.MissedCalls += d
	case model.CallAnswered:
		a.stats.AnsweredCalls += d
	}
}

func indexOf(calls []model.Call, id string) int {
	for i := range calls {
		if calls[i].ID == id {
			return i
		}
	}
	return -1
}

func sortCalls(calls []model.Call) {
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].CreatedAt.After(calls[j].CreatedAt)
	})
}

func latest(g Group) time.Time {
	if len(g.Calls) == 0 {
		return time.Time{}
	}
	return g.Calls[0].CreatedAt
}

func cloneGroup(g *Group) Group {
	out := *g
	out.Calls = append([]model.Call(nil), g.Calls...)
	return out
}
