package export

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

// LeadLister reads persisted leads. store.Store satisfies it.
type LeadLister interface {
	ListLeads(ctx context.Context, filter store.LeadFilter) ([]model.Lead, error)
}

// Exporter writes and delivers the artifact for a finished job.
type Exporter struct {
	leads    LeadLister
	dir      string
	format   Format
	minScore int
	uploader *Uploader
	notion   notion.Client
	leadsDB  string
}

// Artifact describes one delivered export.
type Artifact struct {
	Path     string `json:"path"`
	Rows     int    `json:"rows"`
	Remote   string `json:"remote,omitempty"`
	Notioned int    `json:"notion_pages,omitempty"`
}

// NewExporter builds an Exporter from config. nc may be nil to skip the
// Notion push.
func NewExporter(cfg config.ExportConfig, leads LeadLister, nc notion.Client, leadsDB string) (*Exporter, error) {
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	e := &Exporter{
		leads:    leads,
		dir:      cfg.Dir,
		format:   format,
		minScore: cfg.MinScore,
		notion:   nc,
		leadsDB:  leadsDB,
	}
	if cfg.FTP.URL != "" {
		e.uploader = NewUploader(FTPOptions{
			URL:      cfg.FTP.URL,
			User:     cfg.FTP.User,
			Password: cfg.FTP.Password,
			Timeout:  time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
		})
	}
	return e, nil
}

// Export writes the leads matching filter to path and uploads the file when
// upload is set and FTP is configured.
func (e *Exporter) Export(ctx context.Context, path string, filter store.LeadFilter, upload bool) (*Artifact, error) {
	leads, err := e.leads.ListLeads(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "export: list leads")
	}
	format := e.format
	if ext := filepath.Ext(path); ext != "" {
		if f, err := ParseFormat(ext[1:]); err == nil {
			format = f
		}
	}
	if err := WriteFile(path, format, leads); err != nil {
		return nil, err
	}
	art := &Artifact{Path: path, Rows: len(leads)}

	if upload && e.uploader != nil {
		remote, err := e.uploader.Upload(ctx, path)
		if err != nil {
			return art, err
		}
		art.Remote = remote
	}
	return art, nil
}

// OnComplete exports the job's leads into the configured directory, uploads
// the file and pushes qualified leads to Notion when those are configured.
func (e *Exporter) OnComplete(ctx context.Context, job *model.Job) error {
	filter := store.LeadFilter{JobID: job.ID}
	if e.minScore > 0 {
		score := e.minScore
		filter.MinScore = &score
	}
	path := filepath.Join(e.dir, FileName(job.ID, e.format))

	art, err := e.Export(ctx, path, filter, true)
	if err != nil {
		return err
	}

	if e.notion != nil && e.leadsDB != "" {
		leads, err := e.leads.ListLeads(ctx, store.LeadFilter{JobID: job.ID, QualifiedOnly: true})
		if err != nil {
			return eris.Wrap(err, "export: list qualified leads")
		}
		n, err := PushNotion(ctx, e.notion, e.leadsDB, leads)
		art.Notioned = n
		if err != nil {
			return err
		}
	}

	zap.L().Info("export: job artifact written",
		zap.String("job_id", job.ID),
		zap.String("path", art.Path),
		zap.Int("rows", art.Rows),
		zap.String("remote", art.Remote),
		zap.Int("notion_pages", art.Notioned),
	)
	return nil
}

// Format returns the configured artifact format.
func (e *Exporter) Format() Format { return e.format }
