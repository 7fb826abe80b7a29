package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutreachStatus tracks drafting for a single lead.
type OutreachStatus string

const (
	OutreachPending      OutreachStatus = "pending"
	OutreachDrafted      OutreachStatus = "drafted"
	OutreachFailed       OutreachStatus = "failed"
	OutreachNotQualified OutreachStatus = "not_qualified"
)

// leadNamespace seeds deterministic lead IDs.
var leadNamespace = uuid.MustParse("5b0f6f8e-3c1d-4d0a-9a63-2f1c8f7e4b21")

// Company holds the firmographic fields attached to a lead.
type Company struct {
	Name            string   `json:"name,omitempty"`
	Industry        string   `json:"industry,omitempty"`
	HeadcountRange  string   `json:"headcount_range,omitempty"`
	FundingStage    string   `json:"funding_stage,omitempty"`
	RevenueEstimate string   `json:"revenue_estimate,omitempty"`
	HQLocation      string   `json:"hq_location,omitempty"`
	TechStack       []string `json:"tech_stack,omitempty"`
}

// Lead is a single contact tied to one domain, enriched and scored.
type Lead struct {
	ID             string         `json:"id"`
	JobID          string         `json:"job_id"`
	Domain         string         `json:"domain"`
	ContactName    string         `json:"contact_name"`
	Title          string         `json:"title,omitempty"`
	Seniority      string         `json:"seniority,omitempty"`
	Email          string         `json:"email,omitempty"`
	EmailVerified  bool           `json:"email_verified"`
	LinkedInURL    string         `json:"linkedin_url,omitempty"`
	Company        Company        `json:"company"`
	ICPScore       *int           `json:"icp_score,omitempty"`
	Qualified      bool           `json:"qualified"`
	OutreachEmail  *string        `json:"outreach_email,omitempty"`
	OutreachStatus OutreachStatus `json:"outreach_status,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ContactKey identifies the contact within its domain.
func (l *Lead) ContactKey() string {
	if l.Email != "" {
		return strings.ToLower(l.Email)
	}
	return strings.ToLower(strings.TrimSpace(l.ContactName))
}

// LeadID derives a stable ID so re-runs upsert the same record.
func LeadID(jobID, domain, contactKey string) string {
	return uuid.NewSHA1(leadNamespace, []byte(jobID+"|"+domain+"|"+contactKey)).String()
}

// Clone returns a deep copy of the lead.
func (l Lead) Clone() Lead {
	out := l
	if l.ICPScore != nil {
		s := *l.ICPScore
		out.ICPScore = &s
	}
	if l.OutreachEmail != nil {
		e := *l.OutreachEmail
		out.OutreachEmail = &e
	}
	if l.Company.TechStack != nil {
		out.Company.TechStack = append([]string(nil), l.Company.TechStack...)
	}
	return out
}

// NormalizeTechStack de-duplicates and sorts technology names.
func NormalizeTechStack(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
