// Package provider defines the discovery, enrichment and drafting
// capabilities the pipeline calls, and their concrete backends.
package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Provider names used in errors, gates and metrics.
const (
	NameHunter    = "hunter"
	NameApollo    = "apollo"
	NameAnthropic = "anthropic"
	NameTemplate  = "template"
	NameFixture   = "fixture"
)

// Contact is a candidate person found at a domain.
type Contact struct {
	Domain      string `json:"domain" yaml:"-"`
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title,omitempty" yaml:"title"`
	Seniority   string `json:"seniority,omitempty" yaml:"seniority"`
	Email       string `json:"email,omitempty" yaml:"email"`
	LinkedInURL string `json:"linkedin_url,omitempty" yaml:"linkedin"`
	Company     string `json:"company,omitempty" yaml:"-"`
}

// Enrichment is the firmographic data attached to a contact.
type Enrichment struct {
	Company model.Company
	// Seniority overrides the contact's seniority when non-empty.
	Seniority string
}

// Discoverer finds contacts at a domain.
type Discoverer interface {
	Name() string
	Discover(ctx context.Context, domain string, maxResults int) ([]Contact, error)
}

// Enricher adds company data to a contact and verifies its email.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, c Contact) (*Enrichment, error)
	VerifyEmail(ctx context.Context, email string) (bool, error)
}

// Drafter writes the outreach email for a qualified lead. The text always
// mentions the lead's funding stage, role and company name.
type Drafter interface {
	Name() string
	Draft(ctx context.Context, lead model.Lead) (string, error)
}

// Set bundles one backend per category with the gates that bound them.
type Set struct {
	Discoverer Discoverer
	Enricher   Enricher
	Drafter    Drafter
	Gates      Gates
}

// Gates holds one resilience gate per provider category.
type Gates struct {
	Discovery  *resilience.Gate
	Enrichment *resilience.Gate
	Drafting   *resilience.Gate
}

// All returns the non-nil gates.
func (g Gates) All() []*resilience.Gate {
	var out []*resilience.Gate
	for _, gate := range []*resilience.Gate{g.Discovery, g.Enrichment, g.Drafting} {
		if gate != nil {
			out = append(out, gate)
		}
	}
	return out
}

// ErrEmptyDraft is returned when a model reply contains no body.
var ErrEmptyDraft = eris.New("provider: empty draft")

// firstName returns the first token of a full name, or a neutral greeting.
func firstName(full string) string {
	f := strings.Fields(full)
	if len(f) == 0 {
		return "there"
	}
	return f[0]
}
