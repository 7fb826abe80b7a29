package provider

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// FixtureFile is the YAML layout read by the fixture backend.
//
//	domains:
//	  acme.com:
//	    company:
//	      name: Acme
//	      industry: B2B SaaS
//	      employees: 120
//	      funding_stage: Series B
//	    contacts:
//	      - name: Jane Doe
//	        title: VP of Sales
//	        email: jane@acme.com
//	        verified: true
//	    fail:
//	      discovery: transient
//	      enrichment:
//	        bob@acme.com: permanent
type FixtureFile struct {
	Domains map[string]FixtureDomain `yaml:"domains"`
}

// FixtureDomain is one domain's canned data.
type FixtureDomain struct {
	Company  FixtureCompany   `yaml:"company"`
	Contacts []FixtureContact `yaml:"contacts"`
	Fail     FixtureFailures  `yaml:"fail"`
}

// FixtureCompany is the firmographic record returned by Enrich.
type FixtureCompany struct {
	Name            string   `yaml:"name"`
	Industry        string   `yaml:"industry"`
	Employees       int      `yaml:"employees"`
	HeadcountRange  string   `yaml:"headcount_range"`
	FundingStage    string   `yaml:"funding_stage"`
	RevenueEstimate string   `yaml:"revenue_estimate"`
	HQLocation      string   `yaml:"hq_location"`
	TechStack       []string `yaml:"tech_stack"`
}

// FixtureContact is a discovered contact plus its verification result.
type FixtureContact struct {
	Contact  `yaml:",inline"`
	Verified bool `yaml:"verified"`
}

// FixtureFailures injects errors. Values are "transient" or "permanent".
type FixtureFailures struct {
	Discovery  string            `yaml:"discovery"`
	Enrichment map[string]string `yaml:"enrichment"`
}

// Fixture serves discovery and enrichment from a YAML file. It backs
// offline demos and tests.
type Fixture struct {
	domains  map[string]FixtureDomain
	verified map[string]bool

	mu    sync.Mutex
	calls map[string]int
}

// LoadFixture reads a fixture YAML file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read fixture %s", path)
	}
	var f FixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, model.NewConfigurationError("fixture " + path + ": " + err.Error())
	}
	return NewFixture(f), nil
}

// NewFixture builds a fixture backend from parsed data.
func NewFixture(f FixtureFile) *Fixture {
	fx := &Fixture{
		domains:  make(map[string]FixtureDomain, len(f.Domains)),
		verified: make(map[string]bool),
		calls:    make(map[string]int),
	}
	for d, fd := range f.Domains {
		fx.domains[strings.ToLower(d)] = fd
		for _, c := range fd.Contacts {
			if c.Email != "" {
				fx.verified[strings.ToLower(c.Email)] = c.Verified
			}
		}
	}
	return fx
}

// Name implements Discoverer and Enricher.
func (f *Fixture) Name() string { return NameFixture }

// Calls returns how many times op was invoked, e.g. "discover:acme.com".
func (f *Fixture) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *Fixture) record(key string) {
	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()
}

// Discover implements Discoverer. Unknown domains have no contacts.
func (f *Fixture) Discover(ctx context.Context, domain string, maxResults int) ([]Contact, error) {
	f.record("discover:" + domain)
	if err := ctx.Err(); err != nil {
		return nil, resilience.Classify(NameFixture, "discover", 0, err)
	}
	fd, ok := f.domains[domain]
	if !ok {
		return nil, nil
	}
	if err := injected(fd.Fail.Discovery, "discover", domain); err != nil {
		return nil, err
	}

	out := make([]Contact, 0, min(len(fd.Contacts), maxResults))
	for _, fc := range fd.Contacts {
		if len(out) == maxResults {
			break
		}
		c := fc.Contact
		c.Domain = domain
		c.Company = fd.Company.Name
		if c.Seniority == "" {
			c.Seniority = icp.InferSeniority(c.Title)
		}
		out = append(out, c)
	}
	return out, nil
}

// Enrich implements Enricher.
func (f *Fixture) Enrich(ctx context.Context, c Contact) (*Enrichment, error) {
	f.record("enrich:" + c.Domain)
	if err := ctx.Err(); err != nil {
		return nil, resilience.Classify(NameFixture, "enrich", 0, err)
	}
	fd, ok := f.domains[c.Domain]
	if !ok {
		return nil, resilience.Permanent(NameFixture, "enrich", 404, eris.Errorf("fixture: no company for %s", c.Domain))
	}
	key := strings.ToLower(c.Email)
	if key == "" {
		key = strings.ToLower(c.Name)
	}
	if err := injected(fd.Fail.Enrichment[key], "enrich", key); err != nil {
		return nil, err
	}

	fc := fd.Company
	company := model.Company{
		Name:            fc.Name,
		Industry:        fc.Industry,
		HeadcountRange:  fc.HeadcountRange,
		FundingStage:    fc.FundingStage,
		RevenueEstimate: fc.RevenueEstimate,
		HQLocation:      fc.HQLocation,
		TechStack:       model.NormalizeTechStack(fc.TechStack),
	}
	if company.HeadcountRange == "" && fc.Employees > 0 {
		company.HeadcountRange = icp.HeadcountRange(fc.Employees)
	}
	return &Enrichment{Company: company}, nil
}

// VerifyEmail implements Enricher.
func (f *Fixture) VerifyEmail(_ context.Context, email string) (bool, error) {
	return f.verified[strings.ToLower(email)], nil
}

func injected(kind, op, subject string) error {
	switch kind {
	case "transient":
		return resilience.Transient(NameFixture, op, 503, eris.Errorf("fixture: injected failure for %s", subject))
	case "permanent":
		return resilience.Permanent(NameFixture, op, 400, eris.Errorf("fixture: injected failure for %s", subject))
	default:
		return nil
	}
}
