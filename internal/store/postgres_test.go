package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS jobs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	job := &model.Job{ID: "job-1", Status: model.JobStatusRunning, CreatedAt: time.Now().UTC()}
	mock.ExpectExec(`INSERT INTO jobs .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("job-1", "running", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertJob(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertJob_StorageError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).WillReturnError(errors.New("connection refused"))

	err := s.UpsertJob(context.Background(), &model.Job{ID: "job-1"})
	require.Error(t, err)
	assert.True(t, model.IsStorage(err))
	assert.Contains(t, err.Error(), "upsert job")
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT snapshot FROM jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).
			AddRow([]byte(`{"id":"job-1","status":"completed","domains":["acme.com"],"counters":{"discovered":2,"qualified":1}}`)))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(1), job.Counters.Qualified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT snapshot FROM jobs`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	lead := testLead("job-1", "acme.com", "jane@acme.com", intPtr(72))
	mock.ExpectExec(`INSERT INTO leads .* ON CONFLICT \(job_id, domain, contact_key\) DO UPDATE`).
		WithArgs(
			lead.ID, "job-1", "acme.com", "jane@acme.com", "Jane Doe", "VP of Sales", "vp",
			"jane@acme.com", false, "", "Acme", "B2B SaaS",
			"51-200", "Series B", "", "Austin, United States",
			`["HubSpot","Salesforce"]`, lead.ICPScore, true, lead.OutreachEmail, "",
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertLead(context.Background(), lead))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertLeads_Transaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	leads := []model.Lead{
		*testLead("job-1", "acme.com", "a@acme.com", intPtr(72)),
		*testLead("job-1", "acme.com", "b@acme.com", intPtr(45)),
	}
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO leads`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO leads`).WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := s.UpsertLeads(context.Background(), leads)
	require.Error(t, err)
	assert.True(t, model.IsStorage(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLeads_MinScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	score := 72
	cols := []string{
		"id", "job_id", "domain", "contact_key", "contact_name", "title", "seniority",
		"email", "email_verified", "linkedin_url", "company_name", "industry",
		"headcount_range", "funding_stage", "revenue_estimate", "hq_location",
		"tech_stack", "icp_score", "qualified", "outreach_email", "outreach_status",
		"created_at", "updated_at",
	}
	var noEmail *string
	mock.ExpectQuery(`SELECT .* FROM leads WHERE icp_score >= \$1 ORDER BY icp_score DESC NULLS LAST, domain, contact_key LIMIT \$2$`).
		WithArgs(60, 50).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"lead-1", "job-1", "acme.com", "jane@acme.com", "Jane Doe", "VP of Sales", "vp",
			"jane@acme.com", true, "", "Acme", "B2B SaaS",
			"51-200", "Series B", "$10M", "Austin, United States",
			`["HubSpot"]`, &score, true, noEmail, "failed",
			now, now,
		))

	leads, err := s.ListLeads(context.Background(), LeadFilter{MinScore: intPtr(60), Limit: 50})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, 72, *leads[0].ICPScore)
	assert.Nil(t, leads[0].OutreachEmail)
	assert.Equal(t, model.OutreachFailed, leads[0].OutreachStatus)
	assert.Equal(t, []string{"HubSpot"}, leads[0].Company.TechStack)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LeadStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "qualified", "verified", "drafted"}).
			AddRow(int64(10), int64(4), int64(7), int64(3)))

	st, err := s.LeadStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &LeadStats{Total: 10, Qualified: 4, EmailVerified: 7, Drafted: 3}, st)
}

func TestPostgresStore_ListJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT snapshot FROM jobs WHERE status = \$1 ORDER BY created_at DESC$`).
		WithArgs("failed").
		WillReturnRows(pgxmock.NewRows([]string{"snapshot"}).AddRow([]byte(`{"id":"job-9","status":"failed"}`)))

	jobs, err := s.ListJobs(context.Background(), JobFilter{Status: model.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-9", jobs[0].ID)
}

func TestPGPage(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		offset int
		want   string
		args   []any
	}{
		{name: "every row", want: "q", args: []any{"a"}},
		{name: "limit", limit: 50, want: "q LIMIT $2", args: []any{"a", 50}},
		{name: "limit and offset", limit: 50, offset: 100, want: "q LIMIT $2 OFFSET $3", args: []any{"a", 50, 100}},
		{name: "offset only", offset: 10, want: "q OFFSET $2", args: []any{"a", 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := pgPage("q", []any{"a"}, tt.limit, tt.offset)
			assert.Equal(t, tt.want, q)
			assert.Equal(t, tt.args, args)
		})
	}
}
