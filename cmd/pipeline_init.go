package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/jobstate"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

// pipelineEnv holds the store, providers and orchestrator needed by the
// run/batch/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Jobs         *jobstate.Store
	Orchestrator *pipeline.Orchestrator
	Providers    *provider.Set
	Policy       *icp.Policy
	Exporter     *export.Exporter
	Collector    *monitoring.Collector
	Notion       notion.Client // may be nil
}

// Close waits for background runs, then releases the job store and the
// durable store.
func (pe *pipelineEnv) Close() {
	if pe.Orchestrator != nil {
		pe.Orchestrator.Wait()
	}
	if pe.Jobs != nil {
		pe.Jobs.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// loadPolicy reads the ICP profile and applies the threshold override.
func loadPolicy() (*icp.Policy, error) {
	profile, err := icp.LoadProfile(cfg.ICP.Path)
	if err != nil {
		return nil, err
	}
	if cfg.ICP.Threshold > 0 {
		profile.Threshold = cfg.ICP.Threshold
	}
	return icp.NewPolicy(profile)
}

// newNotion returns a Notion client, or nil when no token is configured.
func newNotion() notion.Client {
	if cfg.Notion.Token == "" {
		return nil
	}
	return notion.NewClient(cfg.Notion.Token)
}

// initPipeline validates config for mode, opens the store, builds the
// providers and the orchestrator. Background runs use ctx. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st, Notion: newNotion()}

	fail := func(err error) (*pipelineEnv, error) {
		env.Close()
		return nil, err
	}

	env.Policy, err = loadPolicy()
	if err != nil {
		return fail(err)
	}
	profile := env.Policy.Profile()

	env.Providers, err = provider.New(cfg, profile)
	if err != nil {
		return fail(err)
	}

	env.Exporter, err = export.NewExporter(cfg.Export, st, env.Notion, cfg.Notion.LeadsDB)
	if err != nil {
		return fail(err)
	}

	r := cfg.Pipeline.Retry
	opts := pipeline.Options{
		MaxConcurrentDomains: cfg.Pipeline.MaxConcurrentDomains,
		LeadConcurrency:      cfg.Pipeline.LeadConcurrency,
		DefaultMaxLeads:      cfg.Pipeline.MaxLeadsPerDomain,
		Retry:                resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction),
	}
	if cfg.Export.OnComplete {
		opts.OnComplete = env.Exporter.OnComplete
	}

	env.Jobs = jobstate.New()
	env.Orchestrator, err = pipeline.New(ctx, env.Jobs, st, env.Providers, env.Policy, opts)
	if err != nil {
		return fail(eris.Wrap(err, "init orchestrator"))
	}
	env.Collector = monitoring.NewCollector(env.Jobs, st, env.Providers.Gates.All()...)

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.Int("icp_threshold", profile.Threshold),
		zap.Int("max_concurrent_domains", cfg.Pipeline.MaxConcurrentDomains),
		zap.Bool("export_on_complete", cfg.Export.OnComplete),
	)
	return env, nil
}
