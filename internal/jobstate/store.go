// Package jobstate holds the live state of pipeline jobs: per-domain task
// states, aggregate counters, error summaries and the leads each job produced.
package jobstate

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = eris.New("jobstate: job not found")

// errClosed is wrapped in a StorageError once the store is closed.
var errClosed = eris.New("jobstate: store closed")

// Counter names a job-level aggregate.
type Counter int

const (
	CounterDiscovered Counter = iota
	CounterEnriched
	CounterQualified
	CounterFailed
)

// taskSlot owns one domain's state. Only that domain's task writes it.
type taskSlot struct {
	mu    sync.Mutex
	state model.TaskState
}

type jobEntry struct {
	id        string
	domains   []string
	maxLeads  int
	createdAt time.Time
	tasks     map[string]*taskSlot // fixed at creation
	counters  [4]atomic.Int64
	cancelled atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once

	mu         sync.Mutex // guards the fields below
	status     model.JobStatus
	errs       []model.ErrorEntry
	leads      map[string]model.Lead
	updatedAt  time.Time
	finishedAt *time.Time
}

// Store is a concurrent in-memory job registry. The zero value is not
// usable; call New.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	closed atomic.Bool
	nowFn  func() time.Time

	metrics *stageMetrics
}

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*jobEntry),
		nowFn:   func() time.Time { return time.Now().UTC() },
		metrics: newStageMetrics(),
	}
}

// Close marks the store unavailable. Further writes fail with a StorageError.
func (s *Store) Close() {
	s.closed.Store(true)
}

func (s *Store) writable(op string) error {
	if s.closed.Load() {
		return model.NewStorageError(op, errClosed)
	}
	return nil
}

func (s *Store) entry(id string) (*jobEntry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	return e, nil
}

// Create registers a pending job over domains and returns its snapshot.
func (s *Store) Create(domains []string, maxLeads int) (*model.Job, error) {
	if err := s.writable("create job"); err != nil {
		return nil, err
	}
	now := s.nowFn()
	e := &jobEntry{
		id:        uuid.New().String(),
		domains:   append([]string(nil), domains...),
		maxLeads:  maxLeads,
		createdAt: now,
		updatedAt: now,
		status:    model.JobStatusPending,
		tasks:     make(map[string]*taskSlot, len(domains)),
		leads:     make(map[string]model.Lead),
		done:      make(chan struct{}),
	}
	for _, d := range domains {
		e.tasks[d] = &taskSlot{state: model.NewTaskState(d)}
	}

	s.mu.Lock()
	s.jobs[e.id] = e
	s.mu.Unlock()

	return s.snapshot(e), nil
}

// Get returns a deep copy of the job.
func (s *Store) Get(id string) (*model.Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(e), nil
}

// List returns snapshots of every job, newest first.
func (s *Store) List() []*model.Job {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Start moves a pending job to running.
func (s *Store) Start(id string) error {
	if err := s.writable("start job"); err != nil {
		return err
	}
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == model.JobStatusPending {
		e.status = model.JobStatusRunning
		e.updatedAt = s.nowFn()
	}
	return nil
}

// Task returns a copy of one domain's state.
func (s *Store) Task(id, domain string) (model.TaskState, error) {
	e, err := s.entry(id)
	if err != nil {
		return model.TaskState{}, err
	}
	slot, ok := e.tasks[domain]
	if !ok {
		return model.TaskState{}, eris.Errorf("jobstate: job %s has no domain %s", id, domain)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.state.Clone(), nil
}

// UpdateTask atomically replaces one domain's task state.
func (s *Store) UpdateTask(id, domain string, ts model.TaskState) error {
	if err := s.writable("update task"); err != nil {
		return err
	}
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	slot, ok := e.tasks[domain]
	if !ok {
		return eris.Errorf("jobstate: job %s has no domain %s", id, domain)
	}
	slot.mu.Lock()
	slot.state = ts.Clone()
	slot.mu.Unlock()
	return nil
}

// Incr adds n to a job counter.
func (s *Store) Incr(id string, c Counter, n int64) error {
	if err := s.writable("increment counter"); err != nil {
		return err
	}
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	if c < CounterDiscovered || c > CounterFailed {
		return eris.Errorf("jobstate: unknown counter %d", c)
	}
	e.counters[c].Add(n)
	return nil
}

// AddError appends an entry to the job's error summary.
func (s *Store) AddError(id string, entry model.ErrorEntry) error {
	if err := s.writable("add error"); err != nil {
		return err
	}
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.errs = append(e.errs, entry)
	e.updatedAt = s.nowFn()
	e.mu.Unlock()
	return nil
}

// PutLeads records (or replaces) leads produced by a job.
func (s *Store) PutLeads(id string, leads ...model.Lead) error {
	if err := s.writable("put leads"); err != nil {
		return err
	}
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	for _, l := range leads {
		e.leads[l.ID] = l.Clone()
	}
	e.mu.Unlock()
	return nil
}

// ListLeads returns a job's leads, optionally only those scoring at least
// minScore, ordered by score (highest first) then domain and contact.
func (s *Store) ListLeads(id string, minScore *int) ([]model.Lead, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	out := make([]model.Lead, 0, len(e.leads))
	for _, l := range e.leads {
		if minScore != nil && (l.ICPScore == nil || *l.ICPScore < *minScore) {
			continue
		}
		out = append(out, l.Clone())
	}
	e.mu.Unlock()

	SortLeads(out)
	return out, nil
}

// SortLeads orders leads by score descending, then domain, then contact.
func SortLeads(leads []model.Lead) {
	score := func(l model.Lead) int {
		if l.ICPScore == nil {
			return -1
		}
		return *l.ICPScore
	}
	sort.SliceStable(leads, func(i, j int) bool {
		si, sj := score(leads[i]), score(leads[j])
		if si != sj {
			return si > sj
		}
		if leads[i].Domain != leads[j].Domain {
			return leads[i].Domain < leads[j].Domain
		}
		return leads[i].ContactKey() < leads[j].ContactKey()
	})
}

// Cancel flags a job as cancelled. Cancelling a finished job is an error.
func (s *Store) Cancel(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	terminal := e.status.Terminal()
	e.mu.Unlock()
	if terminal {
		return ErrTerminal
	}
	e.cancelled.Store(true)
	return nil
}

// ErrTerminal is returned when mutating a job that already finished.
var ErrTerminal = eris.New("jobstate: job already finished")

// IsCancelled reports whether the job was cancelled. Unknown jobs report true
// so their workers stop.
func (s *Store) IsCancelled(id string) bool {
	e, err := s.entry(id)
	if err != nil {
		return true
	}
	return e.cancelled.Load()
}

// Finish computes and stores the terminal status. A non-nil fatal error marks
// the job failed. Finish is idempotent: later calls return the first result.
func (s *Store) Finish(id string, fatal error) (*model.Job, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if !e.status.Terminal() {
		now := s.nowFn()
		e.status = s.terminalStatus(e, fatal)
		e.finishedAt = &now
		e.updatedAt = now
	}
	e.mu.Unlock()

	e.doneOnce.Do(func() { close(e.done) })
	return s.snapshot(e), nil
}

// terminalStatus must be called with e.mu held.
func (s *Store) terminalStatus(e *jobEntry, fatal error) model.JobStatus {
	if fatal != nil {
		return model.JobStatusFailed
	}
	if len(e.errs) > 0 || e.cancelled.Load() {
		return model.JobStatusPartiallyCompleted
	}
	for _, slot := range e.tasks {
		slot.mu.Lock()
		st := slot.state
		slot.mu.Unlock()
		if st.Stage != model.StageDone {
			return model.JobStatusPartiallyCompleted
		}
	}
	return model.JobStatusCompleted
}

// Done returns a channel closed once the job reaches a terminal status.
// Unknown ids return a closed channel.
func (s *Store) Done(id string) <-chan struct{} {
	e, err := s.entry(id)
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return e.done
}

func (s *Store) snapshot(e *jobEntry) *model.Job {
	j := &model.Job{
		ID:                e.id,
		Domains:           append([]string(nil), e.domains...),
		MaxLeadsPerDomain: e.maxLeads,
		CreatedAt:         e.createdAt,
		Tasks:             make(map[string]model.TaskState, len(e.tasks)),
		Cancelled:         e.cancelled.Load(),
		Counters: model.Counters{
			Discovered: e.counters[CounterDiscovered].Load(),
			Enriched:   e.counters[CounterEnriched].Load(),
			Qualified:  e.counters[CounterQualified].Load(),
			Failed:     e.counters[CounterFailed].Load(),
		},
	}
	for d, slot := range e.tasks {
		slot.mu.Lock()
		j.Tasks[d] = slot.state.Clone()
		slot.mu.Unlock()
	}

	e.mu.Lock()
	j.Status = e.status
	j.Errors = append([]model.ErrorEntry{}, e.errs...)
	j.UpdatedAt = e.updatedAt
	if e.finishedAt != nil {
		f := *e.finishedAt
		j.FinishedAt = &f
	}
	e.mu.Unlock()
	return j
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
