package icp

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Factor names used in score breakdowns.
const (
	FactorIndustry     = "industry"
	FactorHeadcount    = "headcount"
	FactorFundingStage = "funding_stage"
	FactorLocation     = "location"
	FactorSeniority    = "seniority"
)

// Result is the outcome of scoring one lead.
type Result struct {
	Score     int            `json:"score"`
	Qualified bool           `json:"qualified"`
	Breakdown map[string]int `json:"breakdown"`
}

// Scorer scores a lead. Implementations must be deterministic.
type Scorer interface {
	Score(lead model.Lead) Result
	Threshold() int
}

// Policy is the rule-based Scorer built from a Profile.
type Policy struct {
	profile Profile

	industries    []string
	keywords      []string
	fundingStages []string
	locations     []string
	seniorities   map[string]bool
	titles        []string
}

// NewPolicy validates p and prepares folded match lists.
func NewPolicy(p Profile) (*Policy, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	pol := &Policy{
		profile:       p,
		industries:    foldAll(p.Industries),
		keywords:      foldAll(p.IndustryKeywords),
		fundingStages: foldAll(p.FundingStages),
		locations:     foldAll(p.Locations),
		titles:        foldAll(p.TargetTitles),
		seniorities:   make(map[string]bool, len(p.SeniorityLevels)),
	}
	for _, s := range foldAll(p.SeniorityLevels) {
		pol.seniorities[s] = true
	}
	return pol, nil
}

// Profile returns the profile the policy was built from.
func (p *Policy) Profile() Profile { return p.profile }

// Threshold returns the qualification cut-off.
func (p *Policy) Threshold() int { return p.profile.Threshold }

// Score computes the weighted fit score. Missing fields score zero.
func (p *Policy) Score(lead model.Lead) Result {
	w := p.profile.Weights
	breakdown := map[string]int{
		FactorIndustry:     p.industryPoints(lead.Company.Industry, w.Industry),
		FactorHeadcount:    p.headcountPoints(lead.Company.HeadcountRange, w.Headcount),
		FactorFundingStage: p.fundingPoints(lead.Company.FundingStage, w.FundingStage),
		FactorLocation:     p.locationPoints(lead.Company.HQLocation, w.Location),
		FactorSeniority:    p.seniorityPoints(lead.Seniority, lead.Title, w.Seniority),
	}

	total := 0
	for _, v := range breakdown {
		total += v
	}
	total = min(max(total, 0), 100)

	return Result{
		Score:     total,
		Qualified: total >= p.profile.Threshold,
		Breakdown: breakdown,
	}
}

// industryPoints gives full weight when a target industry appears in the
// lead's industry and half weight for an adjacent keyword. A short industry
// that is only a fragment of a target ("Tech" for "FinTech") earns nothing.
func (p *Policy) industryPoints(industry string, weight int) int {
	v := fold(industry)
	if v == "" {
		return 0
	}
	for _, target := range p.industries {
		if strings.Contains(v, target) {
			return weight
		}
	}
	for _, kw := range p.keywords {
		if strings.Contains(v, kw) {
			return weight / 2
		}
	}
	return 0
}

func (p *Policy) headcountPoints(rng string, weight int) int {
	lo, hi, ok := ParseHeadcountRange(rng)
	if !ok {
		return 0
	}
	mid := (lo + hi) / 2
	switch {
	case mid >= p.profile.MinEmployees && (p.profile.MaxEmployees == 0 || mid <= p.profile.MaxEmployees):
		return weight
	case p.profile.MaxEmployees > 0 && mid > p.profile.MaxEmployees:
		return weight / 2
	default:
		return 0
	}
}

func (p *Policy) fundingPoints(stage string, weight int) int {
	v := fold(stage)
	if v == "" {
		return 0
	}
	for _, target := range p.fundingStages {
		if v == target {
			return weight
		}
	}
	return 0
}

func (p *Policy) locationPoints(location string, weight int) int {
	v := fold(location)
	if v == "" {
		return 0
	}
	for _, target := range p.locations {
		if strings.Contains(v, target) {
			return weight
		}
	}
	return 0
}

func (p *Policy) seniorityPoints(seniority, title string, weight int) int {
	if s := fold(seniority); s != "" && p.seniorities[s] {
		return weight
	}
	t := fold(title)
	if t == "" {
		return 0
	}
	words := tokenize(t)
	for _, target := range p.titles {
		// Short titles like "CRO" must match a whole word.
		if !strings.Contains(target, " ") && len(target) <= 4 {
			if words[target] {
				return weight
			}
			continue
		}
		if strings.Contains(t, target) {
			return weight
		}
	}
	return 0
}

// fold returns the case-folded, trimmed value. A Caser is stateful, so a
// fresh one is used for each call.
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := fold(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}
