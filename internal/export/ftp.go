package export

import (
	"context"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures artifact upload.
type FTPOptions struct {
	// URL is the destination directory, e.g. ftp://host:21/drop/leads.
	URL      string
	User     string
	Password string
	Timeout  time.Duration
}

// Uploader stores files on an FTP server.
type Uploader struct {
	opts FTPOptions
}

// NewUploader creates an Uploader. Login defaults to anonymous.
func NewUploader(opts FTPOptions) *Uploader {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		if opts.Password == "" {
			opts.Password = "anonymous@"
		}
	}
	return &Uploader{opts: opts}
}

// parseFTPURL extracts host (with port) and directory from an FTP URL.
func parseFTPURL(rawURL string) (host string, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "export: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("export: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", eris.New("export: empty host in ftp url")
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	dir = u.Path
	if dir == "" {
		dir = "/"
	}
	return host, dir, nil
}

// Upload stores the local file under the configured directory and returns
// the remote path.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	host, dir, err := parseFTPURL(u.opts.URL)
	if err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrapf(err, "export: open %s", localPath)
	}
	defer f.Close() //nolint:errcheck

	remote := path.Join(dir, filepath.Base(localPath))
	zap.L().Debug("export: ftp upload", zap.String("host", host), zap.String("path", remote))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(u.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", eris.Wrap(err, "export: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(u.opts.User, u.opts.Password); err != nil {
		return "", eris.Wrap(err, "export: ftp login")
	}
	if err := conn.Stor(remote, f); err != nil {
		return "", eris.Wrapf(err, "export: ftp store %s", remote)
	}
	return remote, nil
}
