package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/jobstate"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(env.Collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(newAPI(env), cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// api serves the pipeline over HTTP.
type api struct {
	orch      *pipeline.Orchestrator
	store     store.Store
	collector *monitoring.Collector
}

func newAPI(env *pipelineEnv) *api {
	return &api{orch: env.Orchestrator, store: env.Store, collector: env.Collector}
}

// defaultLeadsLimit applies to GET /leads without a limit.
const defaultLeadsLimit = 50

func buildRouter(a *api, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Route("/pipeline", func(r chi.Router) {
		r.Post("/run", a.runPipeline)
		r.Get("/status/{jobID}", a.jobStatus)
		r.Get("/jobs", a.listJobs)
		r.Post("/jobs/{jobID}/cancel", a.cancelJob)
		r.Post("/jobs/{jobID}/retry", a.retryJob)
	})
	r.Get("/leads", a.listLeads)
	r.Get("/leads/export", a.exportLeads)
	r.Get("/metrics", a.metrics)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeSubmitError maps a Submit or Retry error to a response.
func writeSubmitError(w http.ResponseWriter, err error) {
	var ce *model.ConfigurationError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Problems: ce.Problems})
	case jobstate.IsNotFound(err):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, pipeline.ErrNotTerminal), errors.Is(err, pipeline.ErrNothingToRetry):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("api: submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type acceptedBody struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	Message   string          `json:"message"`
	Domains   int             `json:"domains,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func accepted(job *model.Job, msg string) acceptedBody {
	return acceptedBody{
		JobID:     job.ID,
		Status:    job.Status,
		Message:   msg,
		Domains:   len(job.Domains),
		CreatedAt: job.CreatedAt,
	}
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runRequest struct {
	Domains           []string `json:"domains"`
	MaxLeadsPerDomain int      `json:"max_leads_per_domain"`
}

func (a *api) runPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := a.orch.Submit(r.Context(), pipeline.Request{
		Domains:           req.Domains,
		MaxLeadsPerDomain: req.MaxLeadsPerDomain,
	})
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted(job, "pipeline started"))
}

func (a *api) jobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	job, err := a.orch.Job(id)
	if err == nil {
		writeJSON(w, http.StatusOK, job)
		return
	}
	if !jobstate.IsNotFound(err) {
		zap.L().Error("api: job status", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Jobs from earlier processes only exist in the store.
	job, err = a.store.GetJob(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, job)
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, "job not found")
	default:
		zap.L().Error("api: load job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r, defaultLeadsLimit)
	if !ok {
		return
	}
	jobs, err := a.store.ListJobs(r.Context(), store.JobFilter{
		Status: model.JobStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		zap.L().Error("api: list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (a *api) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	err := a.orch.Cancel(id)
	switch {
	case err == nil:
		job, _ := a.orch.Job(id)
		writeJSON(w, http.StatusAccepted, accepted(job, "cancellation requested"))
	case jobstate.IsNotFound(err):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobstate.ErrTerminal):
		writeError(w, http.StatusConflict, "job already finished")
	default:
		zap.L().Error("api: cancel job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) retryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := a.orch.Retry(r.Context(), id)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted(job, "retry started for job "+id))
}

// pageParams reads limit and offset; it writes a 400 and returns false on
// malformed values.
func pageParams(w http.ResponseWriter, r *http.Request, defaultLimit int) (limit, offset int, ok bool) {
	q := r.URL.Query()
	limit = defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// leadFilter reads job_id and min_score.
func leadFilter(w http.ResponseWriter, r *http.Request) (store.LeadFilter, bool) {
	q := r.URL.Query()
	filter := store.LeadFilter{JobID: q.Get("job_id"), Domain: q.Get("domain")}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "min_score must be an integer between 0 and 100")
			return filter, false
		}
		filter.MinScore = &n
	}
	filter.QualifiedOnly = q.Get("qualified") == "true"
	return filter, true
}

func (a *api) listLeads(w http.ResponseWriter, r *http.Request) {
	filter, ok := leadFilter(w, r)
	if !ok {
		return
	}
	if filter.Limit, filter.Offset, ok = pageParams(w, r, defaultLeadsLimit); !ok {
		return
	}

	leads, err := a.store.ListLeads(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list leads", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (a *api) exportLeads(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}
	filter, ok := leadFilter(w, r)
	if !ok {
		return
	}

	leads, err := a.store.ListLeads(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: export leads", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(filter.JobID, format)+`"`)
	if err := export.Write(w, format, leads); err != nil {
		zap.L().Error("api: write export", zap.Error(err))
	}
}

func (a *api) metrics(w http.ResponseWriter, r *http.Request) {
	snap, err := a.collector.Collect(r.Context())
	if err != nil {
		zap.L().Error("api: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
