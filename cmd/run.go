package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/intake"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var (
	runDomains  string
	runFile     string
	runColumn   string
	runSheet    string
	runMaxLeads int
	runExport   string
	runUpload   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for a list of domains and wait for it to finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		domains, err := collectDomains(ctx, runDomains, runFile, intake.Options{Column: runColumn, Sheet: runSheet})
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := runJob(ctx, env.Orchestrator, pipeline.Request{Domains: domains, MaxLeadsPerDomain: runMaxLeads})
		if err != nil {
			return err
		}

		if runExport != "" {
			art, err := env.Exporter.Export(context.WithoutCancel(ctx), runExport, store.LeadFilter{JobID: job.ID}, runUpload)
			if err != nil {
				return eris.Wrap(err, "export leads")
			}
			zap.L().Info("leads exported", zap.String("path", art.Path), zap.Int("rows", art.Rows), zap.String("remote", art.Remote))
		}

		return printJSON(cmd.OutOrStdout(), job)
	},
}

func init() {
	runCmd.Flags().StringVar(&runDomains, "domains", "", "comma-separated target domains")
	runCmd.Flags().StringVar(&runFile, "file", "", "CSV, XLSX or text file of target domains")
	runCmd.Flags().StringVar(&runColumn, "column", "", "domain column header in --file (default: auto-detect)")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	runCmd.Flags().IntVar(&runMaxLeads, "max-leads", 0, "max leads per domain (default from config)")
	runCmd.Flags().StringVar(&runExport, "export", "", "write the job's leads to this .csv or .xlsx path")
	runCmd.Flags().BoolVar(&runUpload, "upload", false, "upload the export over FTP (export.ftp.url)")
	rootCmd.AddCommand(runCmd)
}

// collectDomains merges --domains and --file. Invalid entries are dropped
// with a warning; an empty result is an error.
func collectDomains(ctx context.Context, list, file string, opts intake.Options) ([]string, error) {
	var domains []string
	if list != "" {
		domains = append(domains, intake.ParseList(list).Domains...)
	}
	if file != "" {
		res, err := intake.ReadFile(ctx, file, opts)
		if err != nil {
			return nil, err
		}
		domains = append(domains, res.Domains...)
	}
	if len(domains) == 0 {
		return nil, model.NewConfigurationError("no valid domains: pass --domains or --file")
	}
	return domains, nil
}

// runJob submits req and blocks until the job is terminal. An interrupt
// cancels the job; the returned snapshot then shows the skipped work.
func runJob(ctx context.Context, orch *pipeline.Orchestrator, req pipeline.Request) (*model.Job, error) {
	job, err := orch.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	zap.L().Info("job running", zap.String("job_id", job.ID), zap.Int("domains", len(job.Domains)))
	return runJobByID(ctx, orch, job.ID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
