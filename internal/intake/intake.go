// Package intake reads target domain lists from CSV, XLSX and plain-text
// files.
package intake

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/pipeline"
)

// headerNames are the column headers recognized as the domain column.
var headerNames = []string{"domain", "domains", "website", "url", "company_domain", "company domain"}

// Options configures how a file is read.
type Options struct {
	// Column names the domain column. Default: the first recognized header,
	// or the first column when the file has none.
	Column string
	// Sheet selects an XLSX sheet by name. Default: the first sheet.
	Sheet string
}

// Result is the outcome of reading a domain list.
type Result struct {
	Domains  []string `json:"domains"`
	Rejected []string `json:"rejected,omitempty"`
}

// ReadFile reads domains from path, choosing the parser by extension:
// .csv, .xlsx, or anything else as one domain per line.
func ReadFile(ctx context.Context, path string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := readXLSX(path, opts.Sheet)
		if err != nil {
			return nil, err
		}
		return fromRows(rows, opts.Column)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err := collect(streamCSV(ctx, f))
		if err != nil {
			return nil, err
		}
		return fromRows(rows, opts.Column)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "intake: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadLines(ctx, f)
	}
}

// ReadLines reads one domain per line. Blank lines and lines starting with
// '#' are ignored.
func ReadLines(ctx context.Context, r io.Reader) (*Result, error) {
	var values []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "intake: read lines")
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "intake: read lines")
	}
	return normalize(values), nil
}

// ParseList splits a comma or whitespace separated flag value.
func ParseList(s string) *Result {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == ';'
	})
	return normalize(fields)
}

func fromRows(rows [][]string, column string) (*Result, error) {
	if len(rows) == 0 {
		return &Result{}, nil
	}

	col, hasHeader := findColumn(rows[0], column)
	if col < 0 {
		return nil, eris.Errorf("intake: column %q not found", column)
	}
	if hasHeader {
		rows = rows[1:]
	}

	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			if v := strings.TrimSpace(row[col]); v != "" {
				values = append(values, v)
			}
		}
	}
	return normalize(values), nil
}

// findColumn locates the domain column in the first row. It reports whether
// that row is a header.
func findColumn(first []string, column string) (int, bool) {
	for i, cell := range first {
		h := strings.ToLower(strings.TrimSpace(cell))
		if column != "" {
			if h == strings.ToLower(column) {
				return i, true
			}
			continue
		}
		for _, name := range headerNames {
			if h == name {
				return i, true
			}
		}
	}
	if column != "" {
		return -1, false
	}
	// No header: the first row is data unless its first cell is not a domain.
	if len(first) > 0 {
		if _, ok := pipeline.NormalizeDomain(first[0]); !ok {
			return 0, true
		}
	}
	return 0, false
}

// normalize keeps the first occurrence of each valid domain.
func normalize(values []string) *Result {
	res := &Result{}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		d, ok := pipeline.NormalizeDomain(v)
		if !ok {
			res.Rejected = append(res.Rejected, v)
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		res.Domains = append(res.Domains, d)
	}
	if len(res.Rejected) > 0 {
		zap.L().Warn("intake: rejected invalid domains", zap.Strings("values", res.Rejected))
	}
	return res
}
