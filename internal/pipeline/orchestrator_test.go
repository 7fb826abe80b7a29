package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/jobstate"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

func TestNew_RequiresDependencies(t *testing.T) {
	h := newHarness()
	_, err := New(context.Background(), nil, h.sink, h.set, h.scorer, h.opts)
	assert.Error(t, err)

	_, err = New(context.Background(), h.jobs, h.sink, &provider.Set{}, h.scorer, h.opts)
	assert.ErrorIs(t, err, provider.ErrNoBackend)
}

func TestSubmit_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "no domains", req: Request{}},
		{name: "bad domain", req: Request{Domains: []string{"acme.com", "not a domain"}}},
		{name: "lead cap too high", req: Request{Domains: []string{"acme.com"}, MaxLeadsPerDomain: 101}},
		{name: "negative lead cap", req: Request{Domains: []string{"acme.com"}, MaxLeadsPerDomain: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			o := h.orchestrator(t)
			_, err := o.Submit(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, model.IsConfiguration(err))
			assert.Empty(t, h.jobs.List())
		})
	}
}

func TestSubmit_NormalizesAndDeduplicates(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)
	job, err := o.Submit(context.Background(), Request{Domains: []string{"https://www.Acme.com/about", "acme.com", "ACME.COM."}})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme.com"}, job.Domains)
	assert.Equal(t, DefaultMaxLeadsPerDomain, job.MaxLeadsPerDomain)
	assert.Equal(t, model.JobStatusPending, job.Status)

	_, persisted := h.sink.job(job.ID)
	assert.True(t, persisted)
	waitJob(t, o, job.ID)
}

func TestRun_AcmeScenario(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}, MaxLeadsPerDomain: 5})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.FinishedAt)
	assert.Empty(t, job.Errors)
	assert.Equal(t, int64(2), job.Counters.Discovered)
	assert.Equal(t, int64(2), job.Counters.Enriched)
	assert.Equal(t, int64(1), job.Counters.Qualified)
	assert.Equal(t, int64(0), job.Counters.Failed)

	task := job.Tasks["acme.com"]
	assert.Equal(t, model.StageDone, task.Stage)
	assert.Equal(t, model.TaskSucceeded, task.Status)
	assert.Equal(t, 2, task.Leads)
	for _, s := range model.Stages {
		assert.Equal(t, model.TaskSucceeded, task.Stages[s].Status, "stage %s", s)
	}
	assert.Equal(t, 1, task.Stages[model.StageDiscovery].Attempts)

	jane := leadByEmail(t, o, job.ID, "jane@acme.com")
	require.NotNil(t, jane.ICPScore)
	assert.Equal(t, 72, *jane.ICPScore)
	assert.True(t, jane.Qualified)
	assert.True(t, jane.EmailVerified)
	assert.Equal(t, model.OutreachDrafted, jane.OutreachStatus)
	require.NotNil(t, jane.OutreachEmail)
	assert.Contains(t, *jane.OutreachEmail, "Series B")
	assert.Equal(t, "Acme", jane.Company.Name)
	assert.Equal(t, model.LeadID(job.ID, "acme.com", "jane@acme.com"), jane.ID)

	bob := leadByEmail(t, o, job.ID, "bob@acme.com")
	require.NotNil(t, bob.ICPScore)
	assert.Equal(t, 45, *bob.ICPScore)
	assert.False(t, bob.Qualified)
	assert.False(t, bob.EmailVerified)
	assert.Nil(t, bob.OutreachEmail)
	assert.Equal(t, model.OutreachNotQualified, bob.OutreachStatus)

	// Only the qualified lead is drafted.
	assert.Equal(t, 1, h.draft.log.count("jane@acme.com"))
	assert.Equal(t, 0, h.draft.log.count("bob@acme.com"))

	persisted, ok := h.sink.lead("jane@acme.com")
	require.True(t, ok)
	require.NotNil(t, persisted.OutreachEmail)
	_, ok = h.sink.lead("bob@acme.com")
	assert.True(t, ok)

	final, ok := h.sink.job(job.ID)
	require.True(t, ok)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
}

func TestRun_ZeroContacts(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"empty.io"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	task := job.Tasks["empty.io"]
	assert.Equal(t, model.StageDone, task.Stage)
	assert.Equal(t, 0, task.Leads)
	assert.Equal(t, model.TaskSucceeded, task.Stages[model.StageDiscovery].Status)
	assert.Equal(t, model.TaskSkipped, task.Stages[model.StageEnrichment].Status)
	assert.Equal(t, int64(0), job.Counters.Discovered)
	assert.Equal(t, int64(0), job.Counters.Failed)
	assert.Empty(t, job.Errors)
}

func TestRun_OnePermanentEnrichmentFailure(t *testing.T) {
	h := newHarness()
	h.enr.errs = map[string]error{"bob@acme.com": permanent("no such person")}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	task := job.Tasks["acme.com"]
	assert.Equal(t, model.TaskSucceeded, task.Stages[model.StageEnrichment].Status)
	assert.Equal(t, model.StageDone, task.Stage)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, model.StageEnrichment, job.Errors[0].Stage)
	assert.Equal(t, "acme.com", job.Errors[0].Domain)
	assert.Contains(t, job.Errors[0].Message, "bob@acme.com")
	assert.Equal(t, int64(1), job.Counters.Failed)
	assert.Equal(t, int64(1), job.Counters.Enriched)
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)

	// Permanent errors are not retried.
	assert.Equal(t, 1, h.enr.log.count("enrich:bob@acme.com"))
	leads, err := h.jobs.ListLeads(job.ID, nil)
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestRun_AllEnrichmentFailuresFailDomain(t *testing.T) {
	h := newHarness()
	h.enr.errs = map[string]error{
		"jane@acme.com": permanent("gone"),
		"bob@acme.com":  permanent("gone"),
	}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	task := job.Tasks["acme.com"]
	assert.Equal(t, model.StageEnrichment, task.Stage)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Equal(t, model.TaskSkipped, task.Stages[model.StageQualification].Status)
	assert.Contains(t, task.LastError, "all 2 candidates failed")
	assert.Equal(t, int64(2), job.Counters.Failed)
	assert.Len(t, job.Errors, 2)
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)
}

func TestRun_TransientExhaustionFailsOnlyThatDomain(t *testing.T) {
	h := newHarness()
	h.disc.failAll = map[string]error{"flaky.io": transient("503 from provider")}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com", "flaky.io"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	flaky := job.Tasks["flaky.io"]
	assert.Equal(t, model.StageDiscovery, flaky.Stage)
	assert.Equal(t, model.TaskFailed, flaky.Status)
	assert.Equal(t, 3, flaky.Stages[model.StageDiscovery].Attempts)
	assert.Equal(t, model.TaskSkipped, flaky.Stages[model.StageEnrichment].Status)
	assert.Equal(t, 3, h.disc.log.count("flaky.io"))

	acme := job.Tasks["acme.com"]
	assert.Equal(t, model.StageDone, acme.Stage)

	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, "flaky.io", job.Errors[0].Domain)
	assert.Equal(t, model.StageDiscovery, job.Errors[0].Stage)
	assert.Equal(t, int64(1), job.Counters.Failed)
}

func TestRun_TransientRecovers(t *testing.T) {
	h := newHarness()
	h.disc.errs = map[string][]error{"acme.com": {transient("blip")}}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Tasks["acme.com"].Stages[model.StageDiscovery].Attempts)
}

func TestRun_DraftFailureMarksOnlyThatLead(t *testing.T) {
	h := newHarness()
	h.scorer = stubScorer{def: 90, threshold: 60}
	h.draft.errs = map[string]error{"bob@acme.com": permanent("model refused")}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	task := job.Tasks["acme.com"]
	assert.Equal(t, model.StageDone, task.Stage)
	assert.Equal(t, model.TaskSucceeded, task.Stages[model.StageOutreach].Status)

	bob := leadByEmail(t, o, job.ID, "bob@acme.com")
	assert.Equal(t, model.OutreachFailed, bob.OutreachStatus)
	assert.Nil(t, bob.OutreachEmail)
	persisted, ok := h.sink.lead("bob@acme.com")
	require.True(t, ok)
	assert.Equal(t, model.OutreachFailed, persisted.OutreachStatus)

	jane := leadByEmail(t, o, job.ID, "jane@acme.com")
	assert.Equal(t, model.OutreachDrafted, jane.OutreachStatus)

	require.Len(t, job.Errors, 1)
	assert.Equal(t, model.StageOutreach, job.Errors[0].Stage)
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)
}

func TestRun_EmailVerificationFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.enr.verifyErr = permanent("verifier down")
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Empty(t, job.Errors)
	jane := leadByEmail(t, o, job.ID, "jane@acme.com")
	assert.False(t, jane.EmailVerified)
}

func TestRun_NoOutreachUnlessQualified(t *testing.T) {
	h := newHarness()
	h.scorer = stubScorer{def: 10, threshold: 60}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	leads, err := h.jobs.ListLeads(job.ID, nil)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	for _, l := range leads {
		assert.False(t, l.Qualified)
		assert.Nil(t, l.OutreachEmail)
		assert.Equal(t, model.OutreachNotQualified, l.OutreachStatus)
	}
	assert.Equal(t, 0, h.draft.log.count("jane@acme.com"))
}

func TestRun_RescoringIsStable(t *testing.T) {
	h := newHarness()
	policy, err := icp.NewPolicy(icp.DefaultProfile())
	require.NoError(t, err)
	h.scorer = policy
	o := h.orchestrator(t)

	scores := func() map[string]int {
		job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
		require.NoError(t, err)
		waitJob(t, o, job.ID)
		leads, err := h.jobs.ListLeads(job.ID, nil)
		require.NoError(t, err)
		out := make(map[string]int, len(leads))
		for _, l := range leads {
			require.NotNil(t, l.ICPScore)
			out[l.Email] = *l.ICPScore
			assert.Equal(t, *l.ICPScore >= policy.Threshold(), l.Qualified)
		}
		return out
	}
	assert.Equal(t, scores(), scores())
}

func TestRun_ConcurrencyCeilingPerProvider(t *testing.T) {
	h := newHarness()
	h.opts.MaxConcurrentDomains = 50
	h.opts.LeadConcurrency = 10
	h.scorer = stubScorer{def: 90, threshold: 60}
	h.disc.delay = 2 * time.Millisecond
	h.enr.delay = time.Millisecond
	h.draft.delay = time.Millisecond

	domains := make([]string, 50)
	for i := range domains {
		d := fmt.Sprintf("company%02d.com", i)
		domains[i] = d
		h.disc.contacts[d] = []provider.Contact{
			{Name: "A One", Email: "a@" + d},
			{Name: "B Two", Email: "b@" + d},
			{Name: "C Three", Email: "c@" + d},
		}
		h.enr.companies[d] = acmeCompany()
	}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: domains, MaxLeadsPerDomain: 3})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(150), job.Counters.Discovered)
	assert.LessOrEqual(t, h.disc.track.peak.Load(), int64(5))
	assert.LessOrEqual(t, h.enr.track.peak.Load(), int64(5))
	assert.LessOrEqual(t, h.draft.track.peak.Load(), int64(5))
	for _, g := range h.set.Gates.All() {
		assert.Equal(t, int64(0), g.Stats().InFlight, g.Name())
	}
}

func TestRun_RespectsLeadCap(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}, MaxLeadsPerDomain: 1})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, int64(1), job.Counters.Discovered)
	assert.Equal(t, 1, job.Tasks["acme.com"].Leads)
}

func TestCancel_SkipsRemainingWork(t *testing.T) {
	h := newHarness()
	h.opts.MaxConcurrentDomains = 1
	h.disc.started = make(chan string, 1)
	h.disc.block = make(chan struct{})
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com", "b.com", "c.com"}})
	require.NoError(t, err)

	select {
	case <-h.disc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("discovery never started")
	}
	require.NoError(t, o.Cancel(job.ID))
	close(h.disc.block)

	job = waitJob(t, o, job.ID)
	assert.True(t, job.Cancelled)
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)
	for d, task := range job.Tasks {
		assert.Equal(t, model.TaskSkipped, task.Status, d)
	}
	assert.Equal(t, 1, h.disc.log.count("acme.com"))
	assert.Equal(t, 0, h.disc.log.count("b.com"))
	assert.Equal(t, 0, h.enr.log.count("enrich:jane@acme.com"))

	assert.ErrorIs(t, o.Cancel(job.ID), jobstate.ErrTerminal)
	assert.True(t, jobstate.IsNotFound(o.Cancel("missing")))
}

func TestCancel_DuringEnrichmentKeepsAttempts(t *testing.T) {
	h := newHarness()
	h.opts.LeadConcurrency = 1
	h.enr.started = make(chan string, 1)
	h.enr.block = make(chan struct{})
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)

	select {
	case email := <-h.enr.started:
		assert.Equal(t, "jane@acme.com", email)
	case <-time.After(5 * time.Second):
		t.Fatal("enrichment never started")
	}
	require.NoError(t, o.Cancel(job.ID))
	close(h.enr.block)

	job = waitJob(t, o, job.ID)
	assert.True(t, job.Cancelled)
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)

	task := job.Tasks["acme.com"]
	assert.Equal(t, model.TaskSkipped, task.Status)
	assert.Equal(t, model.StageEnrichment, task.Stage)
	assert.Equal(t, model.TaskSucceeded, task.Stages[model.StageDiscovery].Status)
	assert.Equal(t, model.TaskSkipped, task.Stages[model.StageEnrichment].Status)
	assert.Equal(t, 1, task.Stages[model.StageEnrichment].Attempts)
	assert.Equal(t, model.TaskSkipped, task.Stages[model.StageOutreach].Status)

	assert.Equal(t, 0, h.enr.log.count("enrich:bob@acme.com"))
	assert.Equal(t, 0, h.draft.log.count("jane@acme.com"))
	_, persisted := h.sink.lead("jane@acme.com")
	assert.False(t, persisted)
}

func TestCancel_DuringOutreachKeepsDraftedLeads(t *testing.T) {
	h := newHarness()
	h.opts.LeadConcurrency = 1
	h.scorer = stubScorer{def: 80, threshold: 60}
	h.draft.started = make(chan string, 1)
	h.draft.block = make(chan struct{})
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)

	select {
	case email := <-h.draft.started:
		assert.Equal(t, "jane@acme.com", email)
	case <-time.After(5 * time.Second):
		t.Fatal("outreach never started")
	}
	require.NoError(t, o.Cancel(job.ID))
	close(h.draft.block)

	job = waitJob(t, o, job.ID)
	assert.True(t, job.Cancelled)
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)

	task := job.Tasks["acme.com"]
	assert.Equal(t, model.TaskSkipped, task.Status)
	assert.Equal(t, model.StageOutreach, task.Stage)
	assert.Equal(t, model.TaskSucceeded, task.Stages[model.StageQualification].Status)
	assert.Equal(t, model.TaskSkipped, task.Stages[model.StageOutreach].Status)
	assert.Equal(t, 1, task.Stages[model.StageOutreach].Attempts)

	// The draft in flight at cancel time completes; nothing starts after it.
	assert.Equal(t, 1, h.draft.log.count("jane@acme.com"))
	assert.Equal(t, 0, h.draft.log.count("bob@acme.com"))

	jane, ok := h.sink.lead("jane@acme.com")
	require.True(t, ok)
	assert.Equal(t, model.OutreachDrafted, jane.OutreachStatus)
	require.NotNil(t, jane.OutreachEmail)
	assert.Contains(t, *jane.OutreachEmail, "Jane Doe")

	bob, ok := h.sink.lead("bob@acme.com")
	require.True(t, ok)
	assert.Equal(t, model.OutreachPending, bob.OutreachStatus)
	assert.Nil(t, bob.OutreachEmail)

	assert.Equal(t, model.OutreachDrafted, leadByEmail(t, o, job.ID, "jane@acme.com").OutreachStatus)
}

func TestRun_ShutdownSkipsWork(t *testing.T) {
	h := newHarness()
	h.disc.started = make(chan string, 1)
	h.disc.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	o, err := New(ctx, h.jobs, h.sink, h.set, h.scorer, h.opts)
	require.NoError(t, err)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	<-h.disc.started
	cancel()

	job = waitJob(t, o, job.ID)
	assert.Equal(t, model.TaskSkipped, job.Tasks["acme.com"].Status)
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)
	_, persisted := h.sink.job(job.ID)
	assert.True(t, persisted)
}

func TestRun_JobStoreFailureFailsJob(t *testing.T) {
	h := newHarness()
	h.disc.started = make(chan string, 1)
	h.disc.block = make(chan struct{})
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	<-h.disc.started
	h.jobs.Close()
	close(h.disc.block)

	job = waitJob(t, o, job.ID)
	assert.Equal(t, model.JobStatusFailed, job.Status)
}

func TestRun_SinkRejectingJobWriteFailsJob(t *testing.T) {
	h := newHarness()
	h.sink.failJobs = true
	called := false
	h.opts.OnComplete = func(context.Context, *model.Job) error {
		called = true
		return nil
	}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.False(t, called)
}

func TestRun_LeadSinkFailureFailsQualification(t *testing.T) {
	h := newHarness()
	h.sink.failLeads = true
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	job = waitJob(t, o, job.ID)

	task := job.Tasks["acme.com"]
	assert.Equal(t, model.StageQualification, task.Stage)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Contains(t, task.LastError, "persist lead")
	assert.Equal(t, model.JobStatusPartiallyCompleted, job.Status)
}

func TestRun_OnComplete(t *testing.T) {
	h := newHarness()
	done := make(chan model.JobStatus, 1)
	h.opts.OnComplete = func(_ context.Context, job *model.Job) error {
		done <- job.Status
		return nil
	}
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	waitJob(t, o, job.ID)
	assert.Equal(t, model.JobStatusCompleted, <-done)
}

func TestRetry(t *testing.T) {
	h := newHarness()
	h.disc.failAll = map[string]error{"flaky.io": permanent("bad domain")}
	h.disc.contacts["flaky.io"] = []provider.Contact{{Name: "Fay Lake", Email: "fay@flaky.io"}}
	o := h.orchestrator(t)

	first, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com", "flaky.io"}, MaxLeadsPerDomain: 3})
	require.NoError(t, err)
	first = waitJob(t, o, first.ID)
	require.Equal(t, model.JobStatusPartiallyCompleted, first.Status)

	h.disc.failAll = nil
	second, err := o.Retry(context.Background(), first.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{"flaky.io"}, second.Domains)
	assert.Equal(t, 3, second.MaxLeadsPerDomain)

	second = waitJob(t, o, second.ID)
	assert.Equal(t, model.JobStatusCompleted, second.Status)

	_, err = o.Retry(context.Background(), second.ID)
	assert.ErrorIs(t, err, ErrNothingToRetry)

	_, err = o.Retry(context.Background(), "missing")
	assert.True(t, jobstate.IsNotFound(err))
}

func TestRetry_RunningJob(t *testing.T) {
	h := newHarness()
	h.disc.started = make(chan string, 1)
	h.disc.block = make(chan struct{})
	o := h.orchestrator(t)

	job, err := o.Submit(context.Background(), Request{Domains: []string{"acme.com"}})
	require.NoError(t, err)
	<-h.disc.started

	_, err = o.Retry(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrNotTerminal)

	close(h.disc.block)
	waitJob(t, o, job.ID)
}
