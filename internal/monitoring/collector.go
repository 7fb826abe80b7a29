// Package monitoring aggregates pipeline metrics and raises webhook alerts
// when stage failure rates or provider breakers cross their thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/jobstate"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Live counters across every job in the process.
	Jobs               int                                 `json:"jobs"`
	ActiveJobs         int                                 `json:"active_jobs"`
	Discovered         int64                               `json:"discovered"`
	Enriched           int64                               `json:"enriched"`
	Qualified          int64                               `json:"qualified"`
	Failed             int64                               `json:"failed"`
	TasksFinished      int64                               `json:"tasks_finished"`
	AvgTaskLatencyMs   float64                             `json:"avg_task_latency_ms"`
	FailureRateByStage map[model.Stage]float64             `json:"failure_rate_by_stage"`
	Stages             map[model.Stage]jobstate.StageStats `json:"stages"`

	// Persisted lead totals.
	Leads                 *store.LeadStats `json:"leads,omitempty"`
	QualificationRate     float64          `json:"qualification_rate"`
	EmailVerificationRate float64          `json:"email_verification_rate"`

	Providers   []resilience.GateStats `json:"providers"`
	CollectedAt time.Time              `json:"collected_at"`
}

// LeadStatter reports persisted lead totals. store.Store satisfies it.
type LeadStatter interface {
	LeadStats(ctx context.Context) (*store.LeadStats, error)
}

// Collector gathers metrics from the job store, the sink and the gates.
type Collector struct {
	jobs  *jobstate.Store
	leads LeadStatter
	gates []*resilience.Gate
}

// NewCollector creates a metrics collector. leads may be nil.
func NewCollector(jobs *jobstate.Store, leads LeadStatter, gates ...*resilience.Gate) *Collector {
	return &Collector{jobs: jobs, leads: leads, gates: gates}
}

// Collect gathers a snapshot.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	st := c.jobs.Stats()
	snap := &MetricsSnapshot{
		Jobs:               st.Jobs,
		ActiveJobs:         st.ActiveJobs,
		Discovered:         st.Discovered,
		Enriched:           st.Enriched,
		Qualified:          st.Qualified,
		Failed:             st.Failed,
		TasksFinished:      st.TasksFinished,
		AvgTaskLatencyMs:   st.AvgTaskLatencyMs,
		FailureRateByStage: make(map[model.Stage]float64, len(st.Stages)),
		Stages:             st.Stages,
		Providers:          make([]resilience.GateStats, 0, len(c.gates)),
		CollectedAt:        time.Now().UTC(),
	}
	for stage, ss := range st.Stages {
		snap.FailureRateByStage[stage] = ss.FailureRate
	}
	for _, g := range c.gates {
		snap.Providers = append(snap.Providers, g.Stats())
	}

	// In-process rates until the sink is asked.
	if st.Enriched > 0 {
		snap.QualificationRate = float64(st.Qualified) / float64(st.Enriched)
	}

	if c.leads != nil {
		ls, err := c.leads.LeadStats(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: lead stats")
		}
		snap.Leads = ls
		if ls.Total > 0 {
			snap.QualificationRate = float64(ls.Qualified) / float64(ls.Total)
			snap.EmailVerificationRate = float64(ls.EmailVerified) / float64(ls.Total)
		}
	}
	return snap, nil
}
