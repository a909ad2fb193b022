package common

import (
	"time"

	"github.com/google/uuid"
)

// ID is a string alias for UUID v4.
type ID string

// NewID returns a freshly generated ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Metadata is an open-ended key-value bag.
type Metadata map[string]interface{}

// RunInfo identifies one batch pipeline run.  Every artifact and report row
// produced during a run carries its RunID so that downstream phases and the
// audit trail can be correlated.
type RunInfo struct {
	RunID     ID        `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Phase     string    `json:"phase"`
}

// NewRunInfo constructs a RunInfo for the named phase.
func NewRunInfo(phase string) RunInfo {
	return RunInfo{
		RunID:     NewID(),
		StartedAt: time.Now().UTC(),
		Phase:     phase,
	}
}

// Counter is a named tally used in phase run logs.  Nothing is silently
// dropped: every exclusion or skip increments a Counter that ends up in the
// run report.
type Counter struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CounterSet accumulates named tallies in insertion order.
type CounterSet struct {
	order  []string
	counts map[string]int
}

// NewCounterSet returns an empty CounterSet.
func NewCounterSet() *CounterSet {
	return &CounterSet{counts: make(map[string]int)}
}

// Add increments the named counter by n, registering it on first use.
func (s *CounterSet) Add(name string, n int) {
	if _, ok := s.counts[name]; !ok {
		s.order = append(s.order, name)
	}
	s.counts[name] += n
}

// Inc increments the named counter by one.
func (s *CounterSet) Inc(name string) { s.Add(name, 1) }

// Get returns the current value of the named counter.
func (s *CounterSet) Get(name string) int { return s.counts[name] }

// Snapshot returns the counters in registration order.
func (s *CounterSet) Snapshot() []Counter {
	out := make([]Counter, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Counter{Name: name, Count: s.counts[name]})
	}
	return out
}
