package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/jobstate"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// inFlight tracks concurrent calls and the observed peak.
type inFlight struct {
	cur  atomic.Int64
	peak atomic.Int64
}

func (f *inFlight) enter() {
	n := f.cur.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (f *inFlight) leave() { f.cur.Add(-1) }

// callLog counts calls by key.
type callLog struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callLog) hit(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[key]++
	return c.calls[key]
}

func (c *callLog) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

// wait announces key on started and then holds the call until block is
// closed. Both channels are optional.
func wait(ctx context.Context, started chan<- string, block <-chan struct{}, key string) error {
	if started != nil {
		select {
		case started <- key:
		default:
		}
	}
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeDiscoverer struct {
	contacts map[string][]provider.Contact
	// errs[domain] is consumed one entry per call; nil entries succeed.
	errs map[string][]error
	// failAll makes every call for the domain fail with this error.
	failAll map[string]error
	delay   time.Duration
	started chan string
	block   chan struct{}

	log   callLog
	track inFlight
}

func (f *fakeDiscoverer) Name() string { return "fake" }

func (f *fakeDiscoverer) Discover(ctx context.Context, domain string, maxResults int) ([]provider.Contact, error) {
	f.track.enter()
	defer f.track.leave()
	n := f.log.hit(domain)

	if err := wait(ctx, f.started, f.block, domain); err != nil {
		return nil, err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.failAll[domain]; err != nil {
		return nil, err
	}
	if seq := f.errs[domain]; n <= len(seq) && seq[n-1] != nil {
		return nil, seq[n-1]
	}
	out := f.contacts[domain]
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return append([]provider.Contact(nil), out...), nil
}

type fakeEnricher struct {
	companies map[string]model.Company
	// errs is keyed by contact email.
	errs      map[string]error
	verified  map[string]bool
	verifyErr error
	delay     time.Duration
	started   chan string
	block     chan struct{}

	log   callLog
	track inFlight
}

func (f *fakeEnricher) Name() string { return "fake" }

func (f *fakeEnricher) Enrich(ctx context.Context, c provider.Contact) (*provider.Enrichment, error) {
	f.track.enter()
	defer f.track.leave()
	f.log.hit("enrich:" + c.Email)
	if err := wait(ctx, f.started, f.block, c.Email); err != nil {
		return nil, err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.errs[c.Email]; err != nil {
		return nil, err
	}
	return &provider.Enrichment{Company: f.companies[c.Domain]}, nil
}

func (f *fakeEnricher) VerifyEmail(_ context.Context, email string) (bool, error) {
	f.track.enter()
	defer f.track.leave()
	f.log.hit("verify:" + email)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	return f.verified[email], nil
}

type fakeDrafter struct {
	errs    map[string]error
	delay   time.Duration
	started chan string
	block   chan struct{}

	log   callLog
	track inFlight
}

func (f *fakeDrafter) Name() string { return "fake" }

func (f *fakeDrafter) Draft(ctx context.Context, lead model.Lead) (string, error) {
	f.track.enter()
	defer f.track.leave()
	f.log.hit(lead.Email)
	if err := wait(ctx, f.started, f.block, lead.Email); err != nil {
		return "", err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := f.errs[lead.Email]; err != nil {
		return "", err
	}
	return "Hi " + lead.ContactName + ", as " + lead.Title + " at " + lead.Company.Name + " (" + lead.Company.FundingStage + ")", nil
}

// stubScorer scores by contact email; unknown contacts get def.
type stubScorer struct {
	scores    map[string]int
	def       int
	threshold int
}

func (s stubScorer) Score(lead model.Lead) icp.Result {
	score, ok := s.scores[lead.Email]
	if !ok {
		score = s.def
	}
	return icp.Result{Score: score, Qualified: score >= s.threshold}
}

func (s stubScorer) Threshold() int { return s.threshold }

// memSink is an in-memory Sink with failure injection.
type memSink struct {
	mu        sync.Mutex
	jobs      map[string]model.Job
	leads     map[string]model.Lead
	jobWrites int
	failJobs  bool
	failLeads bool
}

func newMemSink() *memSink {
	return &memSink{jobs: make(map[string]model.Job), leads: make(map[string]model.Lead)}
}

func (s *memSink) UpsertJob(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobWrites++
	if s.failJobs {
		return eris.New("sink: jobs table unavailable")
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *memSink) UpsertLead(_ context.Context, lead *model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLeads {
		return eris.New("sink: leads table unavailable")
	}
	s.leads[lead.ID] = lead.Clone()
	return nil
}

func (s *memSink) job(id string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *memSink) lead(email string) (model.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.Email == email {
			return l, true
		}
	}
	return model.Lead{}, false
}

// fixtures for the acme.com scenario.
func acmeContacts() []provider.Contact {
	return []provider.Contact{
		{Name: "Jane Doe", Title: "VP of Sales", Seniority: icp.SeniorityVP, Email: "jane@acme.com", Company: "Acme"},
		{Name: "Bob Roe", Title: "Sales Rep", Seniority: icp.SeniorityEntry, Email: "bob@acme.com", Company: "Acme"},
	}
}

func acmeCompany() model.Company {
	return model.Company{
		Name:           "Acme",
		Industry:       "B2B SaaS",
		HeadcountRange: "51-200",
		FundingStage:   "Series B",
		HQLocation:     "Austin, TX",
	}
}

type harness struct {
	disc   *fakeDiscoverer
	enr    *fakeEnricher
	draft  *fakeDrafter
	sink   *memSink
	jobs   *jobstate.Store
	scorer icp.Scorer
	set    *provider.Set
	opts   Options
}

func newHarness() *harness {
	h := &harness{
		disc: &fakeDiscoverer{
			contacts: map[string][]provider.Contact{"acme.com": acmeContacts()},
		},
		enr: &fakeEnricher{
			companies: map[string]model.Company{"acme.com": acmeCompany()},
			verified:  map[string]bool{"jane@acme.com": true},
		},
		draft:  &fakeDrafter{},
		sink:   newMemSink(),
		jobs:   jobstate.New(),
		scorer: stubScorer{scores: map[string]int{"jane@acme.com": 72, "bob@acme.com": 45}, def: 80, threshold: 60},
		opts: Options{
			MaxConcurrentDomains: 10,
			LeadConcurrency:      4,
			Retry: resilience.RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     2 * time.Millisecond,
				Multiplier:     2,
			},
		},
	}
	h.set = &provider.Set{
		Discoverer: h.disc,
		Enricher:   h.enr,
		Drafter:    h.draft,
		Gates:      newGates(5),
	}
	return h
}

func newGates(limit int) provider.Gates {
	gc := resilience.GateConfig{MaxConcurrency: limit, Timeout: 2 * time.Second}
	return provider.Gates{
		Discovery:  resilience.NewGate("discovery:fake", gc),
		Enrichment: resilience.NewGate("enrichment:fake", gc),
		Drafting:   resilience.NewGate("drafting:fake", gc),
	}
}

func (h *harness) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(context.Background(), h.jobs, h.sink, h.set, h.scorer, h.opts)
	require.NoError(t, err)
	return o
}

func waitJob(t *testing.T, o *Orchestrator, id string) *model.Job {
	t.Helper()
	select {
	case <-o.Jobs().Done(id):
	case <-time.After(10 * time.Second):
		t.Fatalf("job %s did not finish", id)
	}
	o.Wait()
	job, err := o.Job(id)
	require.NoError(t, err)
	return job
}

func leadByEmail(t *testing.T, o *Orchestrator, jobID, email string) model.Lead {
	t.Helper()
	leads, err := o.Jobs().ListLeads(jobID, nil)
	require.NoError(t, err)
	for _, l := range leads {
		if strings.EqualFold(l.Email, email) {
			return l
		}
	}
	t.Fatalf("lead %s not found", email)
	return model.Lead{}
}

func permanent(msg string) error {
	return resilience.Permanent("fake", "test", 400, eris.New(msg))
}

func transient(msg string) error {
	return resilience.Transient("fake", "test", 503, eris.New(msg))
}
