package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/apollo"
)

// maxTechStack caps the technology names kept per company.
const maxTechStack = 10

// ApolloEnricher attaches Apollo organization data to contacts. Contacts at
// the same domain share one lookup: concurrent calls are collapsed with
// singleflight and successful results are memoized for the configured TTL.
type ApolloEnricher struct {
	client   apollo.Client
	verifier *HunterVerifier
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]memoEntry
}

type memoEntry struct {
	org *apollo.Organization
	at  time.Time
}

// NewApolloEnricher creates an enricher. verifier may be nil, in which case
// every email is reported unverified.
func NewApolloEnricher(client apollo.Client, verifier *HunterVerifier, ttl time.Duration) *ApolloEnricher {
	return &ApolloEnricher{
		client:   client,
		verifier: verifier,
		ttl:      ttl,
		now:      time.Now,
		memo:     make(map[string]memoEntry),
	}
}

// Name implements Enricher.
func (e *ApolloEnricher) Name() string { return NameApollo }

// Enrich implements Enricher.
func (e *ApolloEnricher) Enrich(ctx context.Context, c Contact) (*Enrichment, error) {
	org, err := e.organization(ctx, c.Domain)
	if err != nil {
		return nil, resilience.Classify(NameApollo, "enrich", apolloStatus(err), err)
	}

	company := model.Company{
		Name:            org.Name,
		Industry:        org.Industry,
		FundingStage:    org.LatestFundingStage,
		RevenueEstimate: org.AnnualRevenuePrinted,
		HQLocation:      org.Location(),
	}
	if company.Name == "" {
		company.Name = c.Company
	}
	if org.EstimatedNumEmployees > 0 {
		company.HeadcountRange = icp.HeadcountRange(org.EstimatedNumEmployees)
	}
	tech := org.TechnologyNames
	if len(tech) > maxTechStack {
		tech = tech[:maxTechStack]
	}
	company.TechStack = model.NormalizeTechStack(tech)

	return &Enrichment{Company: company}, nil
}

func (e *ApolloEnricher) organization(ctx context.Context, domain string) (*apollo.Organization, error) {
	if org, ok := e.cached(domain); ok {
		return org, nil
	}
	v, err, _ := e.group.Do(domain, func() (any, error) {
		org, err := e.client.EnrichOrganization(ctx, domain)
		if err != nil {
			return nil, err
		}
		if e.ttl > 0 {
			e.mu.Lock()
			e.memo[domain] = memoEntry{org: org, at: e.now()}
			e.mu.Unlock()
		}
		return org, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*apollo.Organization), nil
}

func (e *ApolloEnricher) cached(domain string) (*apollo.Organization, bool) {
	if e.ttl <= 0 {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.memo[domain]
	if !ok {
		return nil, false
	}
	if e.now().Sub(ent.at) > e.ttl {
		delete(e.memo, domain)
		return nil, false
	}
	return ent.org, true
}

// VerifyEmail implements Enricher.
func (e *ApolloEnricher) VerifyEmail(ctx context.Context, email string) (bool, error) {
	if e.verifier == nil || email == "" {
		return false, nil
	}
	return e.verifier.VerifyEmail(ctx, email)
}

func apolloStatus(err error) int {
	var apiErr *apollo.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	if errors.Is(err, apollo.ErrNoOrganization) {
		return 404
	}
	return 0
}
