// Package export writes lead artifacts (CSV or XLSX, one row per lead) and
// delivers them over FTP or to a Notion leads board.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Format is an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unknown format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Columns is the artifact header, in order.
var Columns = []string{
	"id", "job_id", "domain", "contact_name", "title", "seniority", "email",
	"email_verified", "linkedin_url", "company_name", "industry", "headcount_range",
	"funding_stage", "revenue_estimate", "hq_location", "tech_stack", "icp_score",
	"qualified", "outreach_status", "outreach_email", "created_at", "updated_at",
}

func row(l model.Lead) []string {
	score := ""
	if l.ICPScore != nil {
		score = strconv.Itoa(*l.ICPScore)
	}
	outreach := ""
	if l.OutreachEmail != nil {
		outreach = *l.OutreachEmail
	}
	return []string{
		l.ID,
		l.JobID,
		l.Domain,
		l.ContactName,
		l.Title,
		l.Seniority,
		l.Email,
		strconv.FormatBool(l.EmailVerified),
		l.LinkedInURL,
		l.Company.Name,
		l.Company.Industry,
		l.Company.HeadcountRange,
		l.Company.FundingStage,
		l.Company.RevenueEstimate,
		l.Company.HQLocation,
		strings.Join(l.Company.TechStack, ";"),
		score,
		strconv.FormatBool(l.Qualified),
		string(l.OutreachStatus),
		outreach,
		timestamp(l.CreatedAt),
		timestamp(l.UpdatedAt),
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Write encodes leads to w in the given format.
func Write(w io.Writer, format Format, leads []model.Lead) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, leads)
	default:
		return WriteCSV(w, leads)
	}
}

// WriteCSV writes a header row followed by one row per lead.
func WriteCSV(w io.Writer, leads []model.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, l := range leads {
		if err := cw.Write(row(l)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", l.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Leads"

// WriteXLSX writes a single-sheet workbook with a header row.
func WriteXLSX(w io.Writer, leads []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, Columns)
	for _, l := range leads {
		addRow(sheet, row(l))
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	r := sheet.AddRow()
	for _, v := range values {
		r.AddCell().SetString(v)
	}
}

// WriteFile writes the artifact to path, creating parent directories.
func WriteFile(path string, format Format, leads []model.Lead) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(f, format, leads); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// FileName is the artifact name for a job.
func FileName(jobID string, format Format) string {
	if jobID == "" {
		jobID = "all"
	}
	return "leads-" + jobID + "." + string(format)
}
