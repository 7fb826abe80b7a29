// Package pipeline runs lead-generation jobs: each domain moves through
// discovery, enrichment, qualification and outreach under bounded
// parallelism, with progress and partial failures kept in the job store.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/jobstate"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Sink is the durable side of a job: the job snapshot and every lead are
// written through it. store.Store satisfies it.
type Sink interface {
	UpsertJob(ctx context.Context, job *model.Job) error
	UpsertLead(ctx context.Context, lead *model.Lead) error
}

// CompleteFunc runs after a job reaches a terminal status other than failed.
type CompleteFunc func(ctx context.Context, job *model.Job) error

// Options bound how jobs are scheduled.
type Options struct {
	// MaxConcurrentDomains caps domains processed at once per job. Default: 10.
	MaxConcurrentDomains int
	// LeadConcurrency caps per-lead fan-out within a domain. Default: 4.
	LeadConcurrency int
	// DefaultMaxLeads applies when a request leaves the cap unset. Default: 5.
	DefaultMaxLeads int
	// Retry governs every provider call.
	Retry resilience.RetryConfig
	// OnComplete, when set, runs after each successful finish (export).
	OnComplete CompleteFunc
}

// Orchestrator submits and runs jobs. Jobs run in the background on the
// context passed to New; cancelling it skips remaining work.
type Orchestrator struct {
	base      context.Context
	jobs      *jobstate.Store
	sink      Sink
	providers *provider.Set
	scorer    icp.Scorer
	opts      Options
	now       func() time.Time

	wg sync.WaitGroup
}

// New creates an orchestrator. The provider set must be complete.
func New(base context.Context, jobs *jobstate.Store, sink Sink, providers *provider.Set, scorer icp.Scorer, opts Options) (*Orchestrator, error) {
	if jobs == nil || sink == nil || scorer == nil {
		return nil, eris.New("pipeline: job store, sink and scorer are required")
	}
	if err := providers.Check(); err != nil {
		return nil, eris.Wrap(err, "pipeline: providers")
	}
	if opts.MaxConcurrentDomains <= 0 {
		opts.MaxConcurrentDomains = 10
	}
	if opts.LeadConcurrency <= 0 {
		opts.LeadConcurrency = 4
	}
	if opts.DefaultMaxLeads <= 0 {
		opts.DefaultMaxLeads = DefaultMaxLeadsPerDomain
	}
	return &Orchestrator{
		base:      base,
		jobs:      jobs,
		sink:      sink,
		providers: providers,
		scorer:    scorer,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Jobs returns the live job store.
func (o *Orchestrator) Jobs() *jobstate.Store { return o.jobs }

// Submit validates req, creates and persists a pending job and starts it in
// the background. A ConfigurationError is returned for an invalid request;
// a StorageError only when the job store itself is unavailable.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*model.Job, error) {
	domains, maxLeads, err := req.normalize(o.opts.DefaultMaxLeads)
	if err != nil {
		return nil, err
	}

	job, err := o.jobs.Create(domains, maxLeads)
	if err != nil {
		return nil, err
	}
	if err := o.sink.UpsertJob(ctx, job); err != nil {
		// The closing write decides whether the sink failure is systemic.
		zap.L().Warn("pipeline: persist pending job", zap.String("job_id", job.ID), zap.Error(err))
	}

	zap.L().Info("pipeline: job submitted",
		zap.String("job_id", job.ID),
		zap.Int("domains", len(domains)),
		zap.Int("max_leads_per_domain", maxLeads),
	)

	o.wg.Add(1)
	go o.run(job.ID, domains, maxLeads)
	return job, nil
}

// Job returns the live snapshot of a job.
func (o *Orchestrator) Job(id string) (*model.Job, error) {
	return o.jobs.Get(id)
}

// Cancel flags a running job. In-flight calls finish; the remaining work is
// skipped. Cancelling a finished job returns jobstate.ErrTerminal.
func (o *Orchestrator) Cancel(id string) error {
	if err := o.jobs.Cancel(id); err != nil {
		return err
	}
	zap.L().Info("pipeline: job cancelled", zap.String("job_id", id))
	return nil
}

// ErrNothingToRetry is returned by Retry when every domain finished.
var ErrNothingToRetry = eris.New("pipeline: no failed or skipped domains")

// ErrNotTerminal is returned by Retry for a job that is still running.
var ErrNotTerminal = eris.New("pipeline: job has not finished")

// Retry submits the failed and skipped domains of a finished job as a new
// job with the same lead cap.
func (o *Orchestrator) Retry(ctx context.Context, id string) (*model.Job, error) {
	prev, err := o.jobs.Get(id)
	if err != nil {
		return nil, err
	}
	if !prev.Status.Terminal() {
		return nil, ErrNotTerminal
	}
	pending := prev.PendingDomains()
	if len(pending) == 0 {
		return nil, ErrNothingToRetry
	}
	zap.L().Info("pipeline: retrying job",
		zap.String("job_id", id),
		zap.Strings("domains", pending),
	)
	return o.Submit(ctx, Request{Domains: pending, MaxLeadsPerDomain: prev.MaxLeadsPerDomain})
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(jobID string, domains []string, maxLeads int) {
	defer o.wg.Done()
	ctx := o.base
	log := zap.L().With(zap.String("job_id", jobID))
	start := time.Now()

	if err := o.jobs.Start(jobID); err != nil {
		o.finish(ctx, jobID, err)
		return
	}
	if snap, err := o.jobs.Get(jobID); err == nil {
		if err := o.sink.UpsertJob(ctx, snap); err != nil {
			log.Warn("pipeline: persist running job", zap.Error(err))
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.opts.MaxConcurrentDomains)
	for _, d := range domains {
		g.Go(func() error {
			return o.runDomain(ctx, jobID, d, maxLeads)
		})
	}
	fatal := g.Wait()
	if fatal != nil {
		log.Error("pipeline: job store unavailable", zap.Error(fatal))
	}

	job := o.finish(ctx, jobID, fatal)
	if job != nil {
		log.Info("pipeline: job finished",
			zap.String("status", string(job.Status)),
			zap.Int64("discovered", job.Counters.Discovered),
			zap.Int64("qualified", job.Counters.Qualified),
			zap.Int("errors", len(job.Errors)),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// finish writes the closing snapshot and stores the terminal status. A sink
// that rejects the closing write fails the job.
func (o *Orchestrator) finish(ctx context.Context, jobID string, fatal error) *model.Job {
	log := zap.L().With(zap.String("job_id", jobID))
	// Persistence at finish outlives a shutdown of the run context.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if fatal == nil {
		if snap, err := o.jobs.Get(jobID); err == nil {
			if err := o.sink.UpsertJob(wctx, snap); err != nil {
				fatal = model.NewStorageError("persist job", err)
			}
		}
	}

	job, err := o.jobs.Finish(jobID, fatal)
	if err != nil {
		log.Error("pipeline: finish job", zap.Error(err))
		return nil
	}
	if err := o.sink.UpsertJob(wctx, job); err != nil {
		log.Warn("pipeline: persist final job", zap.Error(err))
	}

	if job.Status != model.JobStatusFailed && o.opts.OnComplete != nil {
		if err := o.opts.OnComplete(wctx, job); err != nil {
			log.Warn("pipeline: on-complete hook failed", zap.Error(err))
		}
	}
	return job
}

// stopped reports whether remaining work for the job should be skipped.
func (o *Orchestrator) stopped(ctx context.Context, jobID string) bool {
	return ctx.Err() != nil || o.jobs.IsCancelled(jobID)
}

func (o *Orchestrator) retryConfig(jobID, domain string, gate *resilience.Gate, op string) resilience.RetryConfig {
	cfg := o.opts.Retry
	cfg.Stop = func() bool { return o.jobs.IsCancelled(jobID) }
	cfg.OnRetry = resilience.RetryLogger(gate.Name(), op,
		zap.String("job_id", jobID),
		zap.String("domain", domain),
	)
	return cfg
}
