package icp

import (
	"strconv"
	"strings"
)

// Seniority levels produced by InferSeniority.
const (
	SeniorityExecutive = "executive"
	SeniorityVP        = "vp"
	SeniorityDirector  = "director"
	SeniorityManager   = "manager"
	SenioritySenior    = "senior"
	SeniorityEntry     = "entry"
)

// seniorityRules are checked in order; the first match wins.
var seniorityRules = []struct {
	level    string
	keywords []string
}{
	{SeniorityVP, []string{"vp", "vice president", "svp", "evp"}},
	{SeniorityExecutive, []string{"chief", "ceo", "cro", "cfo", "coo", "cto", "cmo", "founder", "owner", "president"}},
	{SeniorityDirector, []string{"director", "head"}},
	{SeniorityManager, []string{"manager", "lead"}},
	{SenioritySenior, []string{"senior", "sr", "principal", "staff"}},
}

// InferSeniority maps a job title to a seniority level. Unknown or empty
// titles map to entry (or "" for an empty title).
func InferSeniority(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return ""
	}
	words := tokenize(t)
	for _, rule := range seniorityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(kw, " ") {
				if strings.Contains(t, kw) {
					return rule.level
				}
				continue
			}
			if words[kw] {
				return rule.level
			}
		}
	}
	return SeniorityEntry
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		out[w] = true
	}
	return out
}

// ParseHeadcountRange parses ranges like "51-200", "1000+" or "75".
func ParseHeadcountRange(s string) (lo, hi int, ok bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, 0, false
	}
	if strings.HasSuffix(s, "+") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "+"))
		if err != nil {
			return 0, 0, false
		}
		return n, n, true
	}
	if a, b, found := strings.Cut(s, "-"); found {
		l, err1 := strconv.Atoi(strings.TrimSpace(a))
		h, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 != nil || err2 != nil || h < l {
			return 0, 0, false
		}
		return l, h, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}

// headcountBuckets are the ranges used when only an employee count is known.
var headcountBuckets = []struct {
	max   int
	label string
}{
	{10, "1-10"},
	{50, "11-50"},
	{200, "51-200"},
	{500, "201-500"},
	{1000, "501-1000"},
	{5000, "1001-5000"},
	{10000, "5001-10000"},
}

// HeadcountRange buckets an employee count. Zero or negative counts are unknown.
func HeadcountRange(employees int) string {
	if employees <= 0 {
		return ""
	}
	for _, b := range headcountBuckets {
		if employees <= b.max {
			return b.label
		}
	}
	return "10000+"
}
