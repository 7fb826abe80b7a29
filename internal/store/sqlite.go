package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'pending',
	snapshot    TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	finished_at DATETIME
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
	email_verified   INTEGER NOT NULL DEFAULT 0,
	linkedin_url     TEXT NOT NULL DEFAULT '',
	company_name     TEXT NOT NULL DEFAULT '',
	industry         TEXT NOT NULL DEFAULT '',
	headcount_range  TEXT NOT NULL DEFAULT '',
	funding_stage    TEXT NOT NULL DEFAULT '',
	revenue_estimate TEXT NOT NULL DEFAULT '',
	hq_location      TEXT NOT NULL DEFAULT '',
	tech_stack       TEXT NOT NULL DEFAULT '[]',
	icp_score        INTEGER,
	qualified        INTEGER NOT NULL DEFAULT 0,
	outreach_email   TEXT,
	outreach_status  TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (job_id, domain, contact_key)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_leads_icp_score ON leads(icp_score);
CREATE INDEX IF NOT EXISTS idx_leads_job_id ON leads(job_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *model.Job) error {
	snapshot, err := marshalJob(job)
	if err != nil {
		return err
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, snapshot, created_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at`,
		job.ID, string(job.Status), snapshot, job.CreatedAt.UTC(), updated.UTC(), job.FinishedAt,
	)
	if err != nil {
		return model.NewStorageError("upsert job", eris.Wrapf(err, "sqlite: upsert job %s", job.ID))
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM jobs WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return unmarshalJob([]byte(snapshot))
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT snapshot FROM jobs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	query, args = sqlitePage(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.Job
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		j, err := unmarshalJob([]byte(snapshot))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) UpsertLead(ctx context.Context, lead *model.Lead) error {
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

	args := append(row.args(), created.UTC(), updated.UTC())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`, created_at, updated_at)
		VALUES (`+placeholders(len(args))+`)
		ON CONFLICT (job_id, domain, contact_key) DO UPDATE SET `+leadUpdateSet,
		args...,
	)
	if err != nil {
		return model.NewStorageError("upsert lead", eris.Wrapf(err, "sqlite: upsert lead %s", lead.ID))
	}
	return nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	var where []string
	var args []any
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.MinScore != nil {
		where = append(where, "icp_score >= ?")
		args = append(args, *filter.MinScore)
	}
	if filter.QualifiedOnly {
		where = append(where, "qualified = 1")
	}

	query := `SELECT ` + leadColumns + `, created_at, updated_at FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY icp_score DESC, domain, contact_key`
	query, args = sqlitePage(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

func (s *SQLiteStore) LeadStats(ctx context.Context) (*LeadStats, error) {
	var st LeadStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(qualified), 0),
			COALESCE(SUM(email_verified), 0),
			COALESCE(SUM(CASE WHEN outreach_email IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM leads`,
	).Scan(&st.Total, &st.Qualified, &st.EmailVerified, &st.Drafted)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats")
	}
	return &st, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scannable) (model.Lead, error) {
	var r leadRow
	var score sql.NullInt64
	var outreach sql.NullString
	var created, updated time.Time

	err := row.Scan(
		&r.ID, &r.JobID, &r.Domain, &r.ContactKey, &r.ContactName, &r.Title, &r.Seniority,
		&r.Email, &r.EmailVerified, &r.LinkedInURL, &r.CompanyName, &r.Industry,
		&r.HeadcountRange, &r.FundingStage, &r.RevenueEstimate, &r.HQLocation,
		&r.TechStack, &score, &r.Qualified, &outreach, &r.OutreachStatus,
		&created, &updated,
	)
	if err != nil {
		return model.Lead{}, eris.Wrap(err, "sqlite: scan lead")
	}
	if score.Valid {
		v := int(score.Int64)
		r.ICPScore = &v
	}
	if outreach.Valid {
		v := outreach.String
		r.OutreachEmail = &v
	}

	l, err := r.toLead()
	if err != nil {
		return model.Lead{}, err
	}
	l.CreatedAt = created
	l.UpdatedAt = updated
	return l, nil
}

// sqlitePage appends LIMIT/OFFSET. SQLite needs a LIMIT before OFFSET, and
// -1 means no limit.
func sqlitePage(query string, args []any, limit, offset int) (string, []any) {
	if unlimited(limit) {
		if offset <= 0 {
			return query, args
		}
		limit = -1
	}
	return query + ` LIMIT ? OFFSET ?`, append(args, limit, offset)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
