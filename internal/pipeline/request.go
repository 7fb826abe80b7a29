package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Lead cap bounds for a single request.
const (
	DefaultMaxLeadsPerDomain = 5
	MaxLeadsPerDomainCap     = 100
)

// Request is a pipeline submission.
type Request struct {
	Domains           []string `json:"domains"`
	MaxLeadsPerDomain int      `json:"max_leads_per_domain,omitempty"`
}

// normalize validates r and returns the de-duplicated domain list (first
// occurrence order) and the effective lead cap. Every problem is reported
// in one ConfigurationError.
func (r Request) normalize(defaultMax int) ([]string, int, error) {
	var problems []string

	maxLeads := r.MaxLeadsPerDomain
	if maxLeads == 0 {
		maxLeads = defaultMax
		if maxLeads <= 0 {
			maxLeads = DefaultMaxLeadsPerDomain
		}
	}
	if maxLeads < 1 || maxLeads > MaxLeadsPerDomainCap {
		problems = append(problems, "max_leads_per_domain must be between 1 and 100")
	}

	seen := make(map[string]bool, len(r.Domains))
	domains := make([]string, 0, len(r.Domains))
	for _, raw := range r.Domains {
		d, ok := NormalizeDomain(raw)
		if !ok {
			problems = append(problems, fmt.Sprintf("invalid domain %q", raw))
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	if len(r.Domains) == 0 {
		problems = append(problems, "domains must not be empty")
	}

	if len(problems) > 0 {
		return nil, 0, model.NewConfigurationError(problems...)
	}
	return domains, maxLeads, nil
}

// NormalizeDomain reduces a URL or hostname to a bare lower-case host:
// scheme, "www.", port, path and trailing dot are removed. It reports false
// when the result is not a plausible public hostname.
func NormalizeDomain(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", false
		}
		s = u.Host
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimPrefix(s, "www.")

	if len(s) > 253 || !strings.Contains(s, ".") {
		return "", false
	}
	for _, label := range strings.Split(s, ".") {
		if !validLabel(label) {
			return "", false
		}
	}
	return s, true
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}
