package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// LeadPage is the flattened lead written to the leads board.
type LeadPage struct {
	Name      string
	Title     string
	Company   string
	Domain    string
	Email     string
	LinkedIn  string
	Score     int
	Verified  bool
	Outreach  string
	JobID     string
	Seniority string
}

// maxRichText is Notion's per-object text content limit.
const maxRichText = 2000

func (l LeadPage) properties() notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: l.Name}},
			},
		},
		"Title":          richText(l.Title),
		"Company":        richText(l.Company),
		"Domain":         richText(l.Domain),
		"Seniority":      richText(l.Seniority),
		"Job ID":         richText(l.JobID),
		"ICP Score":      notionapi.NumberProperty{Number: float64(l.Score)},
		"Email Verified": notionapi.CheckboxProperty{Checkbox: l.Verified},
	}
	if l.Email != "" {
		props["Email"] = notionapi.EmailProperty{Email: l.Email}
	}
	if l.LinkedIn != "" {
		props["LinkedIn"] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: l.LinkedIn}
	}
	if l.Outreach != "" {
		text := l.Outreach
		if r := []rune(text); len(r) > maxRichText {
			text = string(r[:maxRichText])
		}
		props["Outreach"] = richText(text)
	}
	return props
}

// PushLeads creates one page per lead in the given database and returns how
// many were created before the first error.
func PushLeads(ctx context.Context, c Client, dbID string, leads []LeadPage) (int, error) {
	created := 0
	for _, l := range leads {
		if err := ctx.Err(); err != nil {
			return created, eris.Wrap(err, "notion: push leads cancelled")
		}
		_, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: l.properties(),
		})
		if err != nil {
			return created, eris.Wrapf(err, "notion: push lead %s", l.Email)
		}
		created++
	}
	return created, nil
}
