// Package store persists jobs and leads: the durable side of the export sink.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// ErrNotFound is returned when a job is not in the store.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	JobID         string `json:"job_id,omitempty"`
	Domain        string `json:"domain,omitempty"`
	MinScore      *int   `json:"min_score,omitempty"`
	QualifiedOnly bool   `json:"qualified_only,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// LeadStats summarizes the persisted leads.
type LeadStats struct {
	Total         int64 `json:"total"`
	Qualified     int64 `json:"qualified"`
	EmailVerified int64 `json:"email_verified"`
	Drafted       int64 `json:"drafted"`
}

// Store defines the persistence interface for jobs and leads.
type Store interface {
	// Jobs
	UpsertJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Leads, keyed by (job id, domain, contact key)
	UpsertLead(ctx context.Context, lead *model.Lead) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	LeadStats(ctx context.Context) (*LeadStats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// leadRow is the flattened column set shared by both backends.
type leadRow struct {
	ID              string
	JobID           string
	Domain          string
	ContactKey      string
	ContactName     string
	Title           string
	Seniority       string
	Email           string
	EmailVerified   bool
	LinkedInURL     string
	CompanyName     string
	Industry        string
	HeadcountRange  string
	FundingStage    string
	RevenueEstimate string
	HQLocation      string
	TechStack       string
	ICPScore        *int
	Qualified       bool
	OutreachEmail   *string
	OutreachStatus  string
}

func toLeadRow(l *model.Lead) (leadRow, error) {
	tech := l.Company.TechStack
	if tech == nil {
		tech = []string{}
	}
	techJSON, err := json.Marshal(tech)
	if err != nil {
		return leadRow{}, eris.Wrap(err, "store: marshal tech stack")
	}
	return leadRow{
		ID:              l.ID,
		JobID:           l.JobID,
		Domain:          l.Domain,
		ContactKey:      l.ContactKey(),
		ContactName:     l.ContactName,
		Title:           l.Title,
		Seniority:       l.Seniority,
		Email:           l.Email,
		EmailVerified:   l.EmailVerified,
		LinkedInURL:     l.LinkedInURL,
		CompanyName:     l.Company.Name,
		Industry:        l.Company.Industry,
		HeadcountRange:  l.Company.HeadcountRange,
		FundingStage:    l.Company.FundingStage,
		RevenueEstimate: l.Company.RevenueEstimate,
		HQLocation:      l.Company.HQLocation,
		TechStack:       string(techJSON),
		ICPScore:        l.ICPScore,
		Qualified:       l.Qualified,
		OutreachEmail:   l.OutreachEmail,
		OutreachStatus:  string(l.OutreachStatus),
	}, nil
}

func (r *leadRow) args() []any {
	return []any{
		r.ID, r.JobID, r.Domain, r.ContactKey, r.ContactName, r.Title, r.Seniority,
		r.Email, r.EmailVerified, r.LinkedInURL, r.CompanyName, r.Industry,
		r.HeadcountRange, r.FundingStage, r.RevenueEstimate, r.HQLocation,
		r.TechStack, r.ICPScore, r.Qualified, r.OutreachEmail, r.OutreachStatus,
	}
}

const leadColumns = `id, job_id, domain, contact_key, contact_name, title, seniority,
	email, email_verified, linkedin_url, company_name, industry,
	headcount_range, funding_stage, revenue_estimate, hq_location,
	tech_stack, icp_score, qualified, outreach_email, outreach_status`

// leadUpdateSet is the ON CONFLICT clause; created_at keeps its first value.
const leadUpdateSet = `contact_name = excluded.contact_name,
	title = excluded.title,
	seniority = excluded.seniority,
	email = excluded.email,
	email_verified = excluded.email_verified,
	linkedin_url = excluded.linkedin_url,
	company_name = excluded.company_name,
	industry = excluded.industry,
	headcount_range = excluded.headcount_range,
	funding_stage = excluded.funding_stage,
	revenue_estimate = excluded.revenue_estimate,
	hq_location = excluded.hq_location,
	tech_stack = excluded.tech_stack,
	icp_score = excluded.icp_score,
	qualified = excluded.qualified,
	outreach_email = excluded.outreach_email,
	outreach_status = excluded.outreach_status,
	updated_at = excluded.updated_at`

func (r *leadRow) toLead() (model.Lead, error) {
	l := model.Lead{
		ID:            r.ID,
		JobID:         r.JobID,
		Domain:        r.Domain,
		ContactName:   r.ContactName,
		Title:         r.Title,
		Seniority:     r.Seniority,
		Email:         r.Email,
		EmailVerified: r.EmailVerified,
		LinkedInURL:   r.LinkedInURL,
		Company: model.Company{
			Name:            r.CompanyName,
			Industry:        r.Industry,
			HeadcountRange:  r.HeadcountRange,
			FundingStage:    r.FundingStage,
			RevenueEstimate: r.RevenueEstimate,
			HQLocation:      r.HQLocation,
		},
		ICPScore:       r.ICPScore,
		Qualified:      r.Qualified,
		OutreachEmail:  r.OutreachEmail,
		OutreachStatus: model.OutreachStatus(r.OutreachStatus),
	}
	if r.TechStack != "" {
		if err := json.Unmarshal([]byte(r.TechStack), &l.Company.TechStack); err != nil {
			return model.Lead{}, eris.Wrap(err, "store: unmarshal tech stack")
		}
		if len(l.Company.TechStack) == 0 {
			l.Company.TechStack = nil
		}
	}
	return l, nil
}

func marshalJob(job *model.Job) (string, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal job")
	}
	return string(b), nil
}

func unmarshalJob(data []byte) (*model.Job, error) {
	var j model.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal job")
	}
	return &j, nil
}

// unlimited reports whether a filter asks for every row.
func unlimited(limit int) bool { return limit <= 0 }
