package provider

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/icp"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/hunter"
)

// hunterSearchCap is the largest page Hunter returns from domain search.
const hunterSearchCap = 100

// HunterDiscoverer finds contacts through Hunter domain search. When a title
// filter is set only contacts whose position contains one of its entries
// are returned.
type HunterDiscoverer struct {
	client hunter.Client
	titles []string
}

// NewHunterDiscoverer creates a discoverer. titles may be empty.
func NewHunterDiscoverer(client hunter.Client, titles []string) *HunterDiscoverer {
	folded := make([]string, 0, len(titles))
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			folded = append(folded, strings.ToLower(t))
		}
	}
	return &HunterDiscoverer{client: client, titles: folded}
}

// Name implements Discoverer.
func (d *HunterDiscoverer) Name() string { return NameHunter }

// Discover implements Discoverer.
func (d *HunterDiscoverer) Discover(ctx context.Context, domain string, maxResults int) ([]Contact, error) {
	limit := maxResults
	if len(d.titles) > 0 {
		// Over-fetch so the filter still leaves maxResults decision makers.
		limit = min(maxResults*4, hunterSearchCap)
	}

	resp, err := d.client.DomainSearch(ctx, domain, limit)
	if err != nil {
		return nil, resilience.Classify(NameHunter, "discover", hunterStatus(err), err)
	}

	out := make([]Contact, 0, maxResults)
	for _, e := range resp.Emails {
		if len(out) == maxResults {
			break
		}
		name := strings.TrimSpace(e.FirstName + " " + e.LastName)
		if name == "" && e.Value == "" {
			continue
		}
		if !d.matchesTitle(e.Position) {
			continue
		}
		seniority := icp.InferSeniority(e.Position)
		if seniority == "" {
			seniority = hunterSeniority(e.Seniority)
		}
		out = append(out, Contact{
			Domain:      domain,
			Name:        name,
			Title:       strings.TrimSpace(e.Position),
			Seniority:   seniority,
			Email:       strings.ToLower(strings.TrimSpace(e.Value)),
			LinkedInURL: e.LinkedIn,
			Company:     resp.Organization,
		})
	}
	return out, nil
}

func (d *HunterDiscoverer) matchesTitle(position string) bool {
	if len(d.titles) == 0 {
		return true
	}
	p := strings.ToLower(position)
	if p == "" {
		return false
	}
	words := strings.FieldsFunc(p, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, t := range d.titles {
		// Short titles like "cro" match whole words only.
		if len(t) <= 4 && slices.Contains(words, t) {
			return true
		}
		if len(t) > 4 && strings.Contains(p, t) {
			return true
		}
	}
	return false
}

// hunterSeniority maps Hunter's coarse seniority buckets onto ours.
func hunterSeniority(s string) string {
	switch strings.ToLower(s) {
	case "executive":
		return icp.SeniorityExecutive
	case "senior":
		return icp.SenioritySenior
	case "junior":
		return icp.SeniorityEntry
	default:
		return ""
	}
}

func hunterStatus(err error) int {
	var apiErr *hunter.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// HunterVerifier checks deliverability through Hunter's email verifier.
type HunterVerifier struct {
	client hunter.Client
}

// NewHunterVerifier creates a verifier.
func NewHunterVerifier(client hunter.Client) *HunterVerifier {
	return &HunterVerifier{client: client}
}

// VerifyEmail reports whether Hunter considers email deliverable.
func (v *HunterVerifier) VerifyEmail(ctx context.Context, email string) (bool, error) {
	res, err := v.client.VerifyEmail(ctx, email)
	if err != nil {
		return false, resilience.Classify(NameHunter, "verify", hunterStatus(err), err)
	}
	return res.Deliverable(), nil
}
