package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/jobstate"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

const cancelledReason = "cancelled"

// domainRun is the state of one domain task. Only its own goroutine writes
// ts; lead fan-out reports back through return values and atomics.
type domainRun struct {
	o        *Orchestrator
	jobID    string
	domain   string
	maxLeads int
	ts       model.TaskState
	log      *zap.Logger
	stageAt  time.Time
}

// runDomain drives one domain through the stage machine. Provider and sink
// failures become task transitions; only a job store failure is returned.
func (o *Orchestrator) runDomain(ctx context.Context, jobID, domain string, maxLeads int) error {
	ts, err := o.jobs.Task(jobID, domain)
	if err != nil {
		return err
	}
	r := &domainRun{
		o:        o,
		jobID:    jobID,
		domain:   domain,
		maxLeads: maxLeads,
		ts:       ts,
		log:      zap.L().With(zap.String("job_id", jobID), zap.String("domain", domain)),
	}
	start := time.Now()
	defer func() { o.jobs.ObserveTask(time.Since(start)) }()

	contacts, ok, err := r.discover(ctx)
	if err != nil || !ok {
		return err
	}
	if len(contacts) == 0 {
		return r.complete()
	}

	leads, ok, err := r.enrich(ctx, contacts)
	if err != nil || !ok {
		return err
	}

	qualified, ok, err := r.qualify(ctx, leads)
	if err != nil || !ok {
		return err
	}

	ok, err = r.outreach(ctx, qualified)
	if err != nil || !ok {
		return err
	}
	return r.complete()
}

// begin enters stage s, or skips the task when the job was stopped. It
// reports whether the stage should run.
func (r *domainRun) begin(ctx context.Context, s model.Stage) (bool, error) {
	if r.o.stopped(ctx, r.jobID) {
		return false, r.skip(0)
	}
	now := r.o.now()
	if err := r.ts.Begin(s, now); err != nil {
		return false, eris.Wrap(err, "pipeline: begin stage")
	}
	r.stageAt = time.Now()
	return true, r.save()
}

func (r *domainRun) succeed(attempts int) error {
	r.ts.Succeed(attempts, r.o.now())
	r.log.Info("pipeline: stage complete",
		zap.String("stage", string(r.ts.Stage)),
		zap.Int("attempts", attempts),
		zap.Duration("duration", time.Since(r.stageAt)),
	)
	return r.save()
}

// fail marks the current stage and the task failed, recording one error
// entry and one failed unit.
func (r *domainRun) fail(attempts int, cause error) error {
	stage := r.ts.Stage
	msg := cause.Error()
	r.ts.Fail(attempts, msg, r.o.now())
	r.o.jobs.ObserveStage(stage, true)
	r.log.Warn("pipeline: stage failed",
		zap.String("stage", string(stage)),
		zap.Int("attempts", attempts),
		zap.Duration("duration", time.Since(r.stageAt)),
		zap.Error(cause),
	)
	if err := r.o.jobs.AddError(r.jobID, model.ErrorEntry{Domain: r.domain, Stage: stage, Message: msg}); err != nil {
		return err
	}
	if err := r.o.jobs.Incr(r.jobID, jobstate.CounterFailed, 1); err != nil {
		return err
	}
	return r.save()
}

// skip stops the task after the current stage made the given number of
// provider calls.
func (r *domainRun) skip(attempts int) error {
	r.ts.Skip(attempts, cancelledReason, r.o.now())
	r.log.Info("pipeline: domain skipped",
		zap.String("stage", string(r.ts.Stage)),
		zap.Int("attempts", attempts),
	)
	return r.save()
}

func (r *domainRun) complete() error {
	if err := r.ts.Complete(r.o.now()); err != nil {
		return eris.Wrap(err, "pipeline: complete task")
	}
	r.log.Info("pipeline: domain done", zap.Int("leads", r.ts.Leads))
	return r.save()
}

func (r *domainRun) save() error {
	return r.o.jobs.UpdateTask(r.jobID, r.domain, r.ts)
}

func (r *domainRun) retry(gate *resilience.Gate, op string) resilience.RetryConfig {
	return r.o.retryConfig(r.jobID, r.domain, gate, op)
}

// abort applies the outcome of a failed stage call: a skip when the job was
// stopped meanwhile, otherwise a failure.
func (r *domainRun) abort(ctx context.Context, attempts int, cause error) error {
	if r.o.stopped(ctx, r.jobID) {
		return r.skip(attempts)
	}
	return r.fail(attempts, cause)
}

func (r *domainRun) discover(ctx context.Context) ([]provider.Contact, bool, error) {
	if ok, err := r.begin(ctx, model.StageDiscovery); !ok || err != nil {
		return nil, false, err
	}

	disc := r.o.providers.Discoverer
	gate := r.o.providers.Gates.Discovery
	found, attempts, err := resilience.Invoke(ctx, gate, r.retry(gate, "discover"), "discover",
		func(ctx context.Context) ([]provider.Contact, error) {
			return disc.Discover(ctx, r.domain, r.maxLeads)
		})
	if err != nil {
		return nil, false, r.abort(ctx, attempts, err)
	}

	seen := make(map[string]bool, len(found))
	contacts := make([]provider.Contact, 0, len(found))
	for _, c := range found {
		key := contactKey(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		c.Domain = r.domain
		contacts = append(contacts, c)
		if len(contacts) == r.maxLeads {
			break
		}
	}

	r.o.jobs.ObserveStage(model.StageDiscovery, false)
	if err := r.o.jobs.Incr(r.jobID, jobstate.CounterDiscovered, int64(len(contacts))); err != nil {
		return nil, false, err
	}
	return contacts, true, r.succeed(attempts)
}

func contactKey(c provider.Contact) string {
	l := model.Lead{Email: c.Email, ContactName: c.Name}
	return l.ContactKey()
}

// enrich enriches every contact independently. The stage fails only when
// every contact failed.
func (r *domainRun) enrich(ctx context.Context, contacts []provider.Contact) ([]model.Lead, bool, error) {
	if ok, err := r.begin(ctx, model.StageEnrichment); !ok || err != nil {
		return nil, false, err
	}

	var (
		attempts atomic.Int64
		failed   atomic.Int64
		mu       sync.Mutex
		lastErr  error
	)
	results := make([]*model.Lead, len(contacts))

	g := new(errgroup.Group)
	g.SetLimit(r.o.opts.LeadConcurrency)
	for i, c := range contacts {
		g.Go(func() error {
			if r.o.stopped(ctx, r.jobID) {
				return nil
			}
			lead, n, err := r.enrichOne(ctx, c)
			attempts.Add(int64(n))
			if err != nil {
				if r.o.stopped(ctx, r.jobID) {
					return nil
				}
				failed.Add(1)
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return r.leadFailed(model.StageEnrichment, c, err)
			}
			results[i] = lead
			r.o.jobs.ObserveStage(model.StageEnrichment, false)
			return r.o.jobs.Incr(r.jobID, jobstate.CounterEnriched, 1)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	n := int(attempts.Load())
	if r.o.stopped(ctx, r.jobID) {
		return nil, false, r.skip(n)
	}
	if int(failed.Load()) == len(contacts) {
		return nil, false, r.failStage(n, eris.Wrapf(lastErr, "all %d candidates failed enrichment", len(contacts)))
	}

	leads := make([]model.Lead, 0, len(contacts))
	for _, l := range results {
		if l != nil {
			leads = append(leads, *l)
		}
	}
	return leads, true, r.succeed(n)
}

// failStage fails the task after per-lead failures were already counted, so
// it adds no second failed unit for the same leads.
func (r *domainRun) failStage(attempts int, cause error) error {
	stage := r.ts.Stage
	msg := cause.Error()
	r.ts.Fail(attempts, msg, r.o.now())
	r.log.Warn("pipeline: stage failed",
		zap.String("stage", string(stage)),
		zap.Int("attempts", attempts),
		zap.Duration("duration", time.Since(r.stageAt)),
		zap.Error(cause),
	)
	return r.save()
}

func (r *domainRun) enrichOne(ctx context.Context, c provider.Contact) (*model.Lead, int, error) {
	enricher := r.o.providers.Enricher
	gate := r.o.providers.Gates.Enrichment

	enr, attempts, err := resilience.Invoke(ctx, gate, r.retry(gate, "enrich"), "enrich",
		func(ctx context.Context) (*provider.Enrichment, error) {
			return enricher.Enrich(ctx, c)
		})
	if err != nil {
		return nil, attempts, err
	}

	now := r.o.now()
	lead := &model.Lead{
		JobID:       r.jobID,
		Domain:      r.domain,
		ContactName: c.Name,
		Title:       c.Title,
		Seniority:   c.Seniority,
		Email:       c.Email,
		LinkedInURL: c.LinkedInURL,
		Company:     enr.Company,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	lead.Company.TechStack = model.NormalizeTechStack(lead.Company.TechStack)
	if lead.Company.Name == "" {
		lead.Company.Name = c.Company
	}
	if enr.Seniority != "" {
		lead.Seniority = enr.Seniority
	}
	lead.ID = model.LeadID(r.jobID, r.domain, lead.ContactKey())

	if lead.Email != "" {
		verified, _, err := resilience.Invoke(ctx, gate, r.retry(gate, "verify"), "verify",
			func(ctx context.Context) (bool, error) {
				return enricher.VerifyEmail(ctx, lead.Email)
			})
		if err != nil {
			r.log.Warn("pipeline: email verification failed",
				zap.String("email", lead.Email),
				zap.Error(err),
			)
		}
		lead.EmailVerified = err == nil && verified
	}
	return lead, attempts, nil
}

// leadFailed records one lead's failure without touching the task state.
func (r *domainRun) leadFailed(stage model.Stage, c provider.Contact, cause error) error {
	r.o.jobs.ObserveStage(stage, true)
	r.log.Warn("pipeline: lead failed",
		zap.String("stage", string(stage)),
		zap.String("contact", contactKey(c)),
		zap.Error(cause),
	)
	entry := model.ErrorEntry{
		Domain:  r.domain,
		Stage:   stage,
		Message: fmt.Sprintf("%s: %s", contactKey(c), cause.Error()),
	}
	if err := r.o.jobs.AddError(r.jobID, entry); err != nil {
		return err
	}
	return r.o.jobs.Incr(r.jobID, jobstate.CounterFailed, 1)
}

// qualify scores and persists every lead, returning the qualified ones.
func (r *domainRun) qualify(ctx context.Context, leads []model.Lead) ([]model.Lead, bool, error) {
	if ok, err := r.begin(ctx, model.StageQualification); !ok || err != nil {
		return nil, false, err
	}

	var qualified []model.Lead
	for i := range leads {
		res := r.o.scorer.Score(leads[i])
		score := res.Score
		leads[i].ICPScore = &score
		leads[i].Qualified = res.Qualified
		if res.Qualified {
			leads[i].OutreachStatus = model.OutreachPending
			qualified = append(qualified, leads[i])
		} else {
			leads[i].OutreachStatus = model.OutreachNotQualified
		}
		leads[i].UpdatedAt = r.o.now()
		r.o.jobs.ObserveStage(model.StageQualification, false)
	}

	for i := range leads {
		if err := r.o.sink.UpsertLead(ctx, &leads[i]); err != nil {
			return nil, false, r.abort(ctx, 1, model.NewStorageError("persist lead", err))
		}
	}
	if err := r.o.jobs.PutLeads(r.jobID, leads...); err != nil {
		return nil, false, err
	}
	if err := r.o.jobs.Incr(r.jobID, jobstate.CounterQualified, int64(len(qualified))); err != nil {
		return nil, false, err
	}
	r.ts.Leads = len(leads)
	r.log.Info("pipeline: leads scored",
		zap.Int("leads", len(leads)),
		zap.Int("qualified", len(qualified)),
	)
	return qualified, true, r.succeed(1)
}

// outreach drafts an email for every qualified lead. A failed draft marks
// only that lead.
func (r *domainRun) outreach(ctx context.Context, leads []model.Lead) (bool, error) {
	if ok, err := r.begin(ctx, model.StageOutreach); !ok || err != nil {
		return false, err
	}

	drafter := r.o.providers.Drafter
	gate := r.o.providers.Gates.Drafting
	var attempts atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(r.o.opts.LeadConcurrency)
	for i := range leads {
		g.Go(func() error {
			if r.o.stopped(ctx, r.jobID) {
				return nil
			}
			lead := leads[i]
			text, n, err := resilience.Invoke(ctx, gate, r.retry(gate, "draft"), "draft",
				func(ctx context.Context) (string, error) {
					return drafter.Draft(ctx, lead)
				})
			attempts.Add(int64(n))

			lead.UpdatedAt = r.o.now()
			if err != nil {
				if r.o.stopped(ctx, r.jobID) {
					return nil
				}
				lead.OutreachStatus = model.OutreachFailed
				lead.OutreachEmail = nil
				c := provider.Contact{Email: lead.Email, Name: lead.ContactName}
				if ferr := r.leadFailed(model.StageOutreach, c, err); ferr != nil {
					return ferr
				}
			} else {
				lead.OutreachStatus = model.OutreachDrafted
				lead.OutreachEmail = &text
				r.o.jobs.ObserveStage(model.StageOutreach, false)
			}

			if err := r.o.sink.UpsertLead(ctx, &lead); err != nil {
				r.log.Warn("pipeline: persist drafted lead", zap.String("lead_id", lead.ID), zap.Error(err))
				entry := model.ErrorEntry{Domain: r.domain, Stage: model.StageOutreach, Message: model.NewStorageError("persist lead", err).Error()}
				if aerr := r.o.jobs.AddError(r.jobID, entry); aerr != nil {
					return aerr
				}
			}
			return r.o.jobs.PutLeads(r.jobID, lead)
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	n := int(attempts.Load())
	if r.o.stopped(ctx, r.jobID) {
		return false, r.skip(n)
	}
	return true, r.succeed(n)
}
