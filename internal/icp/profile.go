// Package icp scores enriched leads against the Ideal Customer Profile.
package icp

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// DefaultThreshold is the qualification cut-off when none is configured.
const DefaultThreshold = 60

// Weights assigns points to each scoring factor. They sum to 100.
type Weights struct {
	Industry     int `yaml:"industry" json:"industry"`
	Headcount    int `yaml:"headcount" json:"headcount"`
	FundingStage int `yaml:"funding_stage" json:"funding_stage"`
	Location     int `yaml:"location" json:"location"`
	Seniority    int `yaml:"seniority" json:"seniority"`
}

// Sum returns the total of all factor weights.
func (w Weights) Sum() int {
	return w.Industry + w.Headcount + w.FundingStage + w.Location + w.Seniority
}

// Profile is the target customer definition. It is loaded once and never
// mutated afterwards.
type Profile struct {
	Industries       []string `yaml:"industries" json:"industries"`
	IndustryKeywords []string `yaml:"industry_keywords" json:"industry_keywords"`
	MinEmployees     int      `yaml:"min_employees" json:"min_employees"`
	MaxEmployees     int      `yaml:"max_employees" json:"max_employees"`
	FundingStages    []string `yaml:"funding_stages" json:"funding_stages"`
	Locations        []string `yaml:"locations" json:"locations"`
	SeniorityLevels  []string `yaml:"seniority_levels" json:"seniority_levels"`
	TargetTitles     []string `yaml:"target_titles" json:"target_titles"`
	Weights          Weights  `yaml:"weights" json:"weights"`
	Threshold        int      `yaml:"threshold" json:"threshold"`
}

// DefaultProfile returns the built-in B2B SaaS profile.
func DefaultProfile() Profile {
	return Profile{
		Industries: []string{
			"B2B SaaS", "Sales Technology", "Marketing Technology",
			"FinTech", "Enterprise Software", "Revenue Operations",
		},
		IndustryKeywords: []string{"software", "saas", "technology", "internet", "computer"},
		MinEmployees:     20,
		MaxEmployees:     500,
		FundingStages:    []string{"Series A", "Series B", "Series C", "Bootstrapped"},
		Locations:        []string{"United States", "Canada", "United Kingdom", "Australia"},
		SeniorityLevels:  []string{SeniorityExecutive, SeniorityVP, SeniorityDirector},
		TargetTitles: []string{
			"VP of Sales", "Head of Sales", "CRO", "Chief Revenue Officer",
			"VP of Revenue", "Director of Sales", "CEO", "Co-Founder", "Founder",
		},
		Weights: Weights{
			Industry:     25,
			Headcount:    20,
			FundingStage: 15,
			Location:     15,
			Seniority:    25,
		},
		Threshold: DefaultThreshold,
	}
}

// LoadProfile reads a YAML profile from path. Fields absent from the file
// keep their default values. An empty path returns the default profile.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path from operator config
	if err != nil {
		return Profile{}, eris.Wrapf(err, "icp: read profile %s", path)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, model.NewConfigurationError(fmt.Sprintf("icp: parse %s: %v", path, err))
	}
	return p, nil
}

// Validate checks that a profile is internally consistent.
func Validate(p Profile) error {
	var errs []string

	weights := map[string]int{
		"industry":      p.Weights.Industry,
		"headcount":     p.Weights.Headcount,
		"funding_stage": p.Weights.FundingStage,
		"location":      p.Weights.Location,
		"seniority":     p.Weights.Seniority,
	}
	for _, name := range factorOrder {
		if weights[name] < 0 {
			errs = append(errs, fmt.Sprintf("icp: weight %s must be >= 0", name))
		}
	}
	if sum := p.Weights.Sum(); sum != 100 {
		errs = append(errs, fmt.Sprintf("icp: weights must sum to 100, got %d", sum))
	}

	if p.MinEmployees < 0 {
		errs = append(errs, "icp: min_employees must be >= 0")
	}
	if p.MaxEmployees > 0 && p.MaxEmployees < p.MinEmployees {
		errs = append(errs, "icp: max_employees must be >= min_employees")
	}

	if p.Threshold < 0 || p.Threshold > 100 {
		errs = append(errs, "icp: threshold must be between 0 and 100")
	}
	if len(p.Industries) == 0 {
		errs = append(errs, "icp: industries must not be empty")
	}

	if len(errs) > 0 {
		return model.NewConfigurationError(errs...)
	}
	return nil
}

var factorOrder = []string{"industry", "headcount", "funding_stage", "location", "seniority"}

// String renders the profile on one line for startup logs.
func (p Profile) String() string {
	return fmt.Sprintf("industries=%d employees=%d-%d funding=%s threshold=%d",
		len(p.Industries), p.MinEmployees, p.MaxEmployees,
		strings.Join(p.FundingStages, "/"), p.Threshold)
}
