package export

import (
	"context"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

// LeadPage flattens a lead for the Notion leads board.
func LeadPage(l model.Lead) notion.LeadPage {
	p := notion.LeadPage{
		Name:      l.ContactName,
		Title:     l.Title,
		Company:   l.Company.Name,
		Domain:    l.Domain,
		Email:     l.Email,
		LinkedIn:  l.LinkedInURL,
		Verified:  l.EmailVerified,
		JobID:     l.JobID,
		Seniority: l.Seniority,
	}
	if l.ICPScore != nil {
		p.Score = *l.ICPScore
	}
	if l.OutreachEmail != nil {
		p.Outreach = *l.OutreachEmail
	}
	return p
}

// PushNotion creates one page per qualified lead and returns the count.
func PushNotion(ctx context.Context, c notion.Client, dbID string, leads []model.Lead) (int, error) {
	pages := make([]notion.LeadPage, 0, len(leads))
	for _, l := range leads {
		if l.Qualified {
			pages = append(pages, LeadPage(l))
		}
	}
	return notion.PushLeads(ctx, c, dbID, pages)
}
