package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/db"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const pgUpsertJob = `INSERT INTO jobs (id, status, snapshot, created_at, updated_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		snapshot = excluded.snapshot,
		updated_at = excluded.updated_at,
		finished_at = excluded.finished_at`

const pgGetJob = `SELECT snapshot FROM jobs WHERE id = $1`

var pgUpsertLead = `INSERT INTO leads (` + leadColumns + `, created_at, updated_at)
	VALUES (` + pgPlaceholders(1, 23) + `)
	ON CONFLICT (job_id, domain, contact_key) DO UPDATE SET ` + leadUpdateSet

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of a pipeline run.
var preparedStatements = map[string]string{
	"upsert_job":  pgUpsertJob,
	"get_job":     pgGetJob,
	"upsert_lead": pgUpsertLead,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'pending',
	snapshot    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL,
	domain           TEXT NOT NULL,
	contact_key      TEXT NOT NULL,
	contact_name     TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	seniority        TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	email_verified   BOOLEAN NOT NULL DEFAULT false,
	linkedin_url     TEXT NOT NULL DEFAULT '',
	company_name     TEXT NOT NULL DEFAULT '',
	industry         TEXT NOT NULL DEFAULT '',
	headcount_range  TEXT NOT NULL DEFAULT '',
	funding_stage    TEXT NOT NULL DEFAULT '',
	revenue_estimate TEXT NOT NULL DEFAULT '',
	hq_location      TEXT NOT NULL DEFAULT '',
	tech_stack       JSONB NOT NULL DEFAULT '[]',
	icp_score        INTEGER,
	qualified        BOOLEAN NOT NULL DEFAULT false,
	outreach_email   TEXT,
	outreach_status  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, domain, contact_key)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_leads_icp_score ON leads(icp_score DESC NULLS LAST);
CREATE INDEX IF NOT EXISTS idx_leads_job_id ON leads(job_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertJob(ctx context.Context, job *model.Job) error {
	snapshot, err := marshalJob(job)
	if err != nil {
		return err
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, pgUpsertJob,
		job.ID, string(job.Status), snapshot, job.CreatedAt, updated, job.FinishedAt,
	)
	if err != nil {
		return model.NewStorageError("upsert job", eris.Wrapf(err, "postgres: upsert job %s", job.ID))
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var snapshot []byte
	err := s.pool.QueryRow(ctx, pgGetJob, id).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return unmarshalJob(snapshot)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT snapshot FROM jobs`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	query, args = pgPage(query, args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		j, err := unmarshalJob(snapshot)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) UpsertLead(ctx context.Context, lead *model.Lead) error {
	row, err := toLeadRow(lead)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created := lead.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := lead.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	args := append(row.args(), created, updated)
	if _, err := s.pool.Exec(ctx, pgUpsertLead, args...); err != nil {
		return model.NewStorageError("upsert lead", eris.Wrapf(err, "postgres: upsert lead %s", lead.ID))
	}
	return nil
}

// UpsertLeads writes several leads in one transaction.
func (s *PostgresStore) UpsertLeads(ctx context.Context, leads []model.Lead) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		for i := range leads {
			row, err := toLeadRow(&leads[i])
			if err != nil {
				return err
			}
			args := append(row.args(), now, now)
			if _, err := tx.Exec(ctx, pgUpsertLead, args...); err != nil {
				return eris.Wrapf(err, "postgres: upsert lead %s", leads[i].ID)
			}
		}
		return nil
	})
	if err != nil {
		return model.NewStorageError("upsert leads", err)
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	var where []string
	var args []any
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		where = append(where, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if filter.Domain != "" {
		args = append(args, filter.Domain)
		where = append(where, fmt.Sprintf("domain = $%d", len(args)))
	}
	if filter.MinScore != nil {
		args = append(args, *filter.MinScore)
		where = append(where, fmt.Sprintf("icp_score >= $%d", len(args)))
	}
	if filter.QualifiedOnly {
		where = append(where, "qualified")
	}

	query := `SELECT ` + leadColumns + `, created_at, updated_at FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY icp_score DESC NULLS LAST, domain, contact_key`
	query, args = pgPage(query, args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var r leadRow
		var created, updated time.Time
		if err := rows.Scan(
			&r.ID, &r.JobID, &r.Domain, &r.ContactKey, &r.ContactName, &r.Title, &r.Seniority,
			&r.Email, &r.EmailVerified, &r.LinkedInURL, &r.CompanyName, &r.Industry,
			&r.HeadcountRange, &r.FundingStage, &r.RevenueEstimate, &r.HQLocation,
			&r.TechStack, &r.ICPScore, &r.Qualified, &r.OutreachEmail, &r.OutreachStatus,
			&created, &updated,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l, err := r.toLead()
		if err != nil {
			return nil, err
		}
		l.CreatedAt = created
		l.UpdatedAt = updated
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func (s *PostgresStore) LeadStats(ctx context.Context) (*LeadStats, error) {
	var st LeadStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE qualified),
			COUNT(*) FILTER (WHERE email_verified),
			COUNT(*) FILTER (WHERE outreach_email IS NOT NULL)
		FROM leads`,
	).Scan(&st.Total, &st.Qualified, &st.EmailVerified, &st.Drafted)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead stats")
	}
	return &st, nil
}

// pgPage appends LIMIT and OFFSET; an unset limit returns every row.
func pgPage(query string, args []any, limit, offset int) (string, []any) {
	if !unlimited(limit) {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return query, args
}

func pgPlaceholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}
