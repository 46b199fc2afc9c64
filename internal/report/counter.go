package report

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/tally/internal/intake"
)

// Counter is a Sink decorator that tallies successfully appended records per
// UTC day. Only the current day is kept.
type Counter struct {
	next Sink
	now  func() time.Time

	mu           sync.Mutex
	day          string
	total        int
	bySupervisor map[string]int
}

// NewCounter wraps next.
func NewCounter(next Sink) *Counter {
	return &Counter{
		next:         next,
		now:          time.Now,
		bySupervisor: make(map[string]int),
	}
}

// EnsureHeader delegates to the wrapped sink.
func (c *Counter) EnsureHeader(ctx context.Context) error {
	return c.next.EnsureHeader(ctx)
}

// Append delegates to the wrapped sink and counts the record on success.
func (c *Counter) Append(ctx context.Context, rec intake.Record) error {
	if err := c.next.Append(ctx, rec); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()
	c.total++
	c.bySupervisor[rec.Supervisor]++
	return nil
}

// SupervisorCount is the number of records filed under one supervisor.
type SupervisorCount struct {
	Supervisor string `json:"supervisor"`
	Count      int    `json:"count"`
}

// Summary is the tally for one day.
type Summary struct {
	Day          string            `json:"day"`
	Total        int               `json:"total"`
	BySupervisor []SupervisorCount `json:"by_supervisor"`
}

// Today returns the tally for the current UTC day, supervisors ordered by
// count descending then name.
func (c *Counter) Today() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollLocked()

	s := Summary{Day: c.day, Total: c.total, BySupervisor: []SupervisorCount{}}
	for name, n := range c.bySupervisor {
		s.BySupervisor = append(s.BySupervisor, SupervisorCount{Supervisor: name, Count: n})
	}
	sort.Slice(s.BySupervisor, func(i, j int) bool {
		a, b := s.BySupervisor[i], s.BySupervisor[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Supervisor < b.Supervisor
	})
	return s
}

// rollLocked resets the tally when the UTC day has changed.
func (c *Counter) rollLocked() {
	day := c.now().UTC().Format("2006-01-02")
	if day == c.day {
		return
	}
	c.day = day
	c.total = 0
	c.bySupervisor = make(map[string]int)
}
