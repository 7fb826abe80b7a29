package notion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Intake queue statuses.
const (
	StatusQueued    = "Queued"
	StatusSubmitted = "Submitted"
	StatusFailed    = "Failed"
)

// QueuedDomain is one row of the intake database waiting to be processed.
type QueuedDomain struct {
	PageID string
	Name   string
	Domain string
}

// QueryAll fetches every page matching filter, following pagination cursors.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	for {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		next := *req
		next.StartCursor = resp.NextCursor
		req = &next
	}
}

// QueryQueuedDomains returns the intake rows with Status = "Queued". Rows
// with neither a URL nor a Domain property are dropped.
func QueryQueuedDomains(ctx context.Context, c Client, dbID string) ([]QueuedDomain, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: StatusQueued,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query queued domains")
	}

	out := make([]QueuedDomain, 0, len(pages))
	for _, p := range pages {
		q := pageToQueuedDomain(p)
		if q.Domain == "" {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func pageToQueuedDomain(page notionapi.Page) QueuedDomain {
	q := QueuedDomain{PageID: string(page.ID)}

	if prop, ok := page.Properties["Name"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			q.Name = plainText(tp.Title)
		}
	}
	if prop, ok := page.Properties["URL"]; ok {
		if up, ok := prop.(*notionapi.URLProperty); ok {
			q.Domain = strings.TrimSpace(up.URL)
		}
	}
	if q.Domain == "" {
		if prop, ok := page.Properties["Domain"]; ok {
			if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
				q.Domain = plainText(rtp.RichText)
			}
		}
	}
	return q
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// MarkQueued sets an intake row's status and, when jobID is set, records the
// job that picked it up.
func MarkQueued(ctx context.Context, c Client, pageID, status, jobID string) error {
	now := notionapi.Date(time.Now())
	props := notionapi.Properties{
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: status},
		},
		"Last Submitted": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}
	if jobID != "" {
		props["Job ID"] = richText(jobID)
	}
	if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: mark page %s %s", pageID, status))
	}
	return nil
}

func richText(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}
