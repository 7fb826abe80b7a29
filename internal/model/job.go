package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// JobStatus represents the lifecycle state of a pipeline job.
type JobStatus string

const (
	JobStatusPending            JobStatus = "pending"
	JobStatusRunning            JobStatus = "running"
	JobStatusCompleted          JobStatus = "completed"
	JobStatusFailed             JobStatus = "failed"
	JobStatusPartiallyCompleted JobStatus = "partially_completed"
)

// Terminal reports whether the job has finished.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusPartiallyCompleted:
		return true
	default:
		return false
	}
}

// Stage is a step of the per-domain pipeline.
type Stage string

const (
	StageDiscovery     Stage = "discovery"
	StageEnrichment    Stage = "enrichment"
	StageQualification Stage = "qualification"
	StageOutreach      Stage = "outreach"
	StageDone          Stage = "done"
)

// Stages lists the working stages in execution order.
var Stages = []Stage{StageDiscovery, StageEnrichment, StageQualification, StageOutreach}

// TaskStatus is the status of a stage (or of a lead within a stage).
type TaskStatus string

const (
	TaskWaiting    TaskStatus = "waiting"
	TaskInProgress TaskStatus = "in_progress"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// nextStage is the transition table of the domain state machine.
var nextStage = map[Stage]Stage{
	StageDiscovery:     StageEnrichment,
	StageEnrichment:    StageQualification,
	StageQualification: StageOutreach,
	StageOutreach:      StageDone,
}

// prevStage maps a stage to the stage that must have succeeded before it.
var prevStage = map[Stage]Stage{
	StageEnrichment:    StageDiscovery,
	StageQualification: StageEnrichment,
	StageOutreach:      StageQualification,
	StageDone:          StageOutreach,
}

// StageRecord captures the outcome of one stage for one domain.
type StageRecord struct {
	Status     TaskStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TaskState tracks a single domain's progress through the pipeline.
type TaskState struct {
	Domain    string                `json:"domain"`
	Stage     Stage                 `json:"stage"`
	Status    TaskStatus            `json:"status"`
	Stages    map[Stage]StageRecord `json:"stages"`
	LastError string                `json:"last_error,omitempty"`
	Leads     int                   `json:"leads"`
	StartedAt *time.Time            `json:"started_at,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewTaskState returns a task waiting to start discovery.
func NewTaskState(domain string) TaskState {
	stages := make(map[Stage]StageRecord, len(Stages))
	for _, s := range Stages {
		stages[s] = StageRecord{Status: TaskWaiting}
	}
	return TaskState{
		Domain:    domain,
		Stage:     StageDiscovery,
		Status:    TaskWaiting,
		Stages:    stages,
		UpdatedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the task has reached a final state.
func (t TaskState) Terminal() bool {
	if t.Stage == StageDone {
		return true
	}
	return t.Status == TaskFailed || t.Status == TaskSkipped
}

// Begin moves the task into stage s. The previous stage must have succeeded.
func (t *TaskState) Begin(s Stage, now time.Time) error {
	if t.Terminal() {
		return eris.Errorf("model: task %s already terminal at %s", t.Domain, t.Stage)
	}
	if prev, ok := prevStage[s]; ok && t.Stages[prev].Status != TaskSucceeded {
		return eris.Errorf("model: task %s cannot enter %s before %s succeeded", t.Domain, s, prev)
	}
	if s != t.Stage && nextStage[t.Stage] != s {
		return eris.Errorf("model: task %s cannot move from %s to %s", t.Domain, t.Stage, s)
	}
	rec := t.Stages[s]
	rec.Status = TaskInProgress
	rec.StartedAt = &now
	t.Stages[s] = rec
	t.Stage = s
	t.Status = TaskInProgress
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.UpdatedAt = now
	return nil
}

// Succeed marks the current stage succeeded with the given attempt count.
func (t *TaskState) Succeed(attempts int, now time.Time) {
	t.finish(TaskSucceeded, attempts, "", now)
}

// Fail marks the current stage, and with it the task, failed. Later stages
// are skipped.
func (t *TaskState) Fail(attempts int, msg string, now time.Time) {
	t.finish(TaskFailed, attempts, msg, now)
	for s := nextStage[t.Stage]; s != StageDone && s != ""; s = nextStage[s] {
		rec := t.Stages[s]
		rec.Status = TaskSkipped
		t.Stages[s] = rec
	}
	t.LastError = msg
}

// Skip marks the current stage and every later stage skipped. attempts is
// the number of provider calls the current stage made before it stopped.
func (t *TaskState) Skip(attempts int, reason string, now time.Time) {
	for s := t.Stage; s != StageDone; s = nextStage[s] {
		rec := t.Stages[s]
		if s == t.Stage && rec.Status == TaskInProgress {
			rec.Attempts = attempts
		}
		if rec.Status == TaskWaiting || rec.Status == TaskInProgress {
			rec.Status = TaskSkipped
			rec.Error = reason
			rec.FinishedAt = &now
			t.Stages[s] = rec
		}
	}
	t.Status = TaskSkipped
	t.LastError = reason
	t.UpdatedAt = now
}

// Complete moves a task whose current stage succeeded to Done.
func (t *TaskState) Complete(now time.Time) error {
	if t.Stages[t.Stage].Status != TaskSucceeded {
		return eris.Errorf("model: task %s cannot complete, %s is %s", t.Domain, t.Stage, t.Stages[t.Stage].Status)
	}
	// Stages never entered (zero leads) are marked skipped.
	for s := nextStage[t.Stage]; s != StageDone && s != ""; s = nextStage[s] {
		rec := t.Stages[s]
		rec.Status = TaskSkipped
		t.Stages[s] = rec
	}
	t.Stage = StageDone
	t.Status = TaskSucceeded
	t.UpdatedAt = now
	return nil
}

func (t *TaskState) finish(status TaskStatus, attempts int, msg string, now time.Time) {
	rec := t.Stages[t.Stage]
	rec.Status = status
	rec.Attempts = attempts
	rec.Error = msg
	rec.FinishedAt = &now
	t.Stages[t.Stage] = rec
	t.Status = status
	t.UpdatedAt = now
}

// Clone returns a deep copy of the task state.
func (t TaskState) Clone() TaskState {
	out := t
	out.Stages = make(map[Stage]StageRecord, len(t.Stages))
	for k, v := range t.Stages {
		out.Stages[k] = v
	}
	return out
}

// Counters are the job-level aggregates.
type Counters struct {
	Discovered int64 `json:"discovered"`
	Enriched   int64 `json:"enriched"`
	Qualified  int64 `json:"qualified"`
	Failed     int64 `json:"failed"`
}

// ErrorEntry is one line of a job's error summary.
type ErrorEntry struct {
	Domain  string `json:"domain"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Job is one pipeline invocation over a set of domains.
type Job struct {
	ID                string               `json:"id"`
	Status            JobStatus            `json:"status"`
	Domains           []string             `json:"domains"`
	MaxLeadsPerDomain int                  `json:"max_leads_per_domain"`
	Tasks             map[string]TaskState `json:"tasks"`
	Counters          Counters             `json:"counters"`
	Errors            []ErrorEntry         `json:"errors"`
	Cancelled         bool                 `json:"cancelled"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	FinishedAt        *time.Time           `json:"finished_at,omitempty"`
}

// PendingDomains returns the domains whose task did not finish at Done.
func (j *Job) PendingDomains() []string {
	var out []string
	for _, d := range j.Domains {
		if t, ok := j.Tasks[d]; !ok || t.Stage != StageDone {
			out = append(out, d)
		}
	}
	return out
}
