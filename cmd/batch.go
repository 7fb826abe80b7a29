package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

var (
	batchLimit    int
	batchMaxLeads int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the queued domains of the Notion intake board as one job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		queued, err := notion.QueryQueuedDomains(ctx, env.Notion, cfg.Notion.IntakeDB)
		if err != nil {
			return eris.Wrap(err, "query queued domains")
		}

		job, err := processBatch(ctx, env.Orchestrator, env.Notion, queued, batchLimit, batchMaxLeads)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		return printJSON(cmd.OutOrStdout(), job)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of queued domains to process")
	batchCmd.Flags().IntVar(&batchMaxLeads, "max-leads", 0, "max leads per domain (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// processBatch applies limit, runs the queued domains as one job and writes
// each row's outcome back to the intake board. It returns nil when nothing
// is queued.
func processBatch(ctx context.Context, orch *pipeline.Orchestrator, nc notion.Client, queued []notion.QueuedDomain, limit, maxLeads int) (*model.Job, error) {
	if len(queued) == 0 {
		zap.L().Info("no queued domains found")
		return nil, nil
	}
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}

	rows := make(map[string][]notion.QueuedDomain, len(queued))
	domains := make([]string, 0, len(queued))
	for _, q := range queued {
		d, ok := pipeline.NormalizeDomain(q.Domain)
		if !ok {
			zap.L().Warn("skipping invalid intake domain", zap.String("page_id", q.PageID), zap.String("domain", q.Domain))
			markRow(ctx, nc, q.PageID, notion.StatusFailed, "")
			continue
		}
		if _, seen := rows[d]; !seen {
			domains = append(domains, d)
		}
		rows[d] = append(rows[d], q)
	}
	if len(domains) == 0 {
		return nil, model.NewConfigurationError("no valid domains in the intake queue")
	}

	zap.L().Info("processing batch", zap.Int("domains", len(domains)))

	job, err := orch.Submit(ctx, pipeline.Request{Domains: domains, MaxLeadsPerDomain: maxLeads})
	if err != nil {
		return nil, err
	}
	for _, d := range domains {
		for _, q := range rows[d] {
			markRow(ctx, nc, q.PageID, notion.StatusSubmitted, job.ID)
		}
	}

	job, err = runJobByID(ctx, orch, job.ID)
	if err != nil {
		return nil, err
	}

	// Rows whose domain did not reach done go back as failed.
	wctx := context.WithoutCancel(ctx)
	var failed int
	for _, d := range job.PendingDomains() {
		for _, q := range rows[d] {
			markRow(wctx, nc, q.PageID, notion.StatusFailed, job.ID)
			failed++
		}
	}

	zap.L().Info("batch complete",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int("domains", len(domains)),
		zap.Int("failed_rows", failed),
	)
	return job, nil
}

// runJobByID waits for a submitted job, cancelling it on interrupt.
func runJobByID(ctx context.Context, orch *pipeline.Orchestrator, id string) (*model.Job, error) {
	done := orch.Jobs().Done(id)
	select {
	case <-done:
	case <-ctx.Done():
		zap.L().Warn("interrupted, cancelling job", zap.String("job_id", id))
		_ = orch.Cancel(id)
		<-done
	}
	orch.Wait()
	return orch.Job(id)
}

func markRow(ctx context.Context, nc notion.Client, pageID, status, jobID string) {
	if nc == nil || pageID == "" {
		return
	}
	if err := notion.MarkQueued(ctx, nc, pageID, status, jobID); err != nil {
		zap.L().Warn("failed to update intake row", zap.String("page_id", pageID), zap.String("status", status), zap.Error(err))
	}
}
