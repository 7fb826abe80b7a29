package jobstate

import (
	"sync/atomic"
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
)

type stageCounter struct {
	units    atomic.Int64
	failures atomic.Int64
}

// stageMetrics are process-wide aggregates across all jobs.
type stageMetrics struct {
	stages       map[model.Stage]*stageCounter // fixed at construction
	tasks        atomic.Int64
	latencyTotal atomic.Int64 // nanoseconds
}

func newStageMetrics() *stageMetrics {
	m := &stageMetrics{stages: make(map[model.Stage]*stageCounter, len(model.Stages))}
	for _, s := range model.Stages {
		m.stages[s] = &stageCounter{}
	}
	return m
}

// ObserveStage records one unit of work (a domain or a lead) processed by a
// stage, and whether it failed.
func (s *Store) ObserveStage(stage model.Stage, failed bool) {
	c, ok := s.metrics.stages[stage]
	if !ok {
		return
	}
	c.units.Add(1)
	if failed {
		c.failures.Add(1)
	}
}

// ObserveTask records a domain task's end-to-end processing time.
func (s *Store) ObserveTask(d time.Duration) {
	s.metrics.tasks.Add(1)
	s.metrics.latencyTotal.Add(int64(d))
}

// StageStats summarizes one stage across all jobs.
type StageStats struct {
	Units       int64   `json:"units"`
	Failures    int64   `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
}

// Stats is a process-wide summary across all jobs.
type Stats struct {
	Jobs             int                        `json:"jobs"`
	ActiveJobs       int                        `json:"active_jobs"`
	Discovered       int64                      `json:"discovered"`
	Enriched         int64                      `json:"enriched"`
	Qualified        int64                      `json:"qualified"`
	Failed           int64                      `json:"failed"`
	TasksFinished    int64                      `json:"tasks_finished"`
	AvgTaskLatencyMs float64                    `json:"avg_task_latency_ms"`
	Stages           map[model.Stage]StageStats `json:"stages"`
}

// Stats aggregates counters across every job in the store.
func (s *Store) Stats() Stats {
	st := Stats{Stages: make(map[model.Stage]StageStats, len(model.Stages))}

	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		st.Jobs++
		e.mu.Lock()
		if !e.status.Terminal() {
			st.ActiveJobs++
		}
		e.mu.Unlock()
		st.Discovered += e.counters[CounterDiscovered].Load()
		st.Enriched += e.counters[CounterEnriched].Load()
		st.Qualified += e.counters[CounterQualified].Load()
		st.Failed += e.counters[CounterFailed].Load()
	}

	for stage, c := range s.metrics.stages {
		ss := StageStats{Units: c.units.Load(), Failures: c.failures.Load()}
		if ss.Units > 0 {
			ss.FailureRate = float64(ss.Failures) / float64(ss.Units)
		}
		st.Stages[stage] = ss
	}

	st.TasksFinished = s.metrics.tasks.Load()
	if st.TasksFinished > 0 {
		st.AvgTaskLatencyMs = float64(s.metrics.latencyTotal.Load()) / float64(st.TasksFinished) / float64(time.Millisecond)
	}
	return st
}
