// Package fetcher turns an --input argument into a local lead file. Remote
// sources (http, https, ftp) are downloaded into a scratch directory, and a
// .zip holding a single lead file is unpacked, before ingest reads it.
package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// Fetcher downloads one remote file.
type Fetcher interface {
	// DownloadToFile fetches url into path and returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Options configures remote input downloads.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	RateLimit rate.Limit
	Retry     resilience.RetryConfig

	// WorkDir is where scratch directories are created; "" uses os.TempDir.
	WorkDir string
}

// OptionsFromConfig converts configuration into fetcher options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		UserAgent: cfg.Fetch.UserAgent,
		RateLimit: rate.Limit(cfg.Fetch.RateLimitRPS),
		Retry: resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.BaseDelayMs,
			cfg.Retry.MaxDelayMs,
			cfg.Retry.Jitter,
		),
	}
}

// Source is a resolved input. Close removes any scratch files.
type Source struct {
	Path   string // local file for ingest
	Origin string // the argument as given
	Remote bool

	scratch string
}

// Close removes the scratch directory, if one was created.
func (s *Source) Close() error {
	if s == nil || s.scratch == "" {
		return nil
	}
	return eris.Wrap(os.RemoveAll(s.scratch), "fetcher: remove scratch dir")
}

// Resolver maps URL schemes to fetchers.
type Resolver struct {
	fetchers map[string]Fetcher
	workDir  string
}

// NewResolver creates a Resolver with http, https and ftp support.
func NewResolver(opts Options) *Resolver {
	h := NewHTTPFetcher(opts)
	return &Resolver{
		fetchers: map[string]Fetcher{
			"http":  h,
			"https": h,
			"ftp":   NewFTPFetcher(opts),
		},
		workDir: opts.WorkDir,
	}
}

// Resolve returns a local lead file for input. Plain paths pass through
// unchanged unless they are zip archives.
func (r *Resolver) Resolve(ctx context.Context, input string) (*Source, error) {
	src := &Source{Path: input, Origin: input}

	if scheme, ok := remoteScheme(input); ok {
		f, found := r.fetchers[scheme]
		if !found {
			return nil, resilience.NewFatalConfigError(fmt.Sprintf("unsupported input scheme %q", scheme), nil)
		}
		if err := r.makeScratch(src); err != nil {
			return nil, err
		}
		dest := filepath.Join(src.scratch, remoteName(input))
		start := time.Now()
		n, err := f.DownloadToFile(ctx, input, dest)
		if err != nil {
			_ = src.Close()
			return nil, eris.Wrapf(err, "fetcher: download %s", input)
		}
		zap.L().Info("fetcher: downloaded input",
			zap.String("url", input),
			zap.Int64("bytes", n),
			zap.Duration("elapsed", time.Since(start)),
		)
		src.Path = dest
		src.Remote = true
	}

	if strings.EqualFold(filepath.Ext(src.Path), ".zip") {
		if err := r.makeScratch(src); err != nil {
			return nil, err
		}
		extracted, err := ExtractLeadFile(src.Path, filepath.Join(src.scratch, "unzipped"))
		if err != nil {
			_ = src.Close()
			return nil, err
		}
		src.Path = extracted
	}
	return src, nil
}

func (r *Resolver) makeScratch(src *Source) error {
	if src.scratch != "" {
		return nil
	}
	dir, err := os.MkdirTemp(r.workDir, "leadbatch-input-*")
	if err != nil {
		return eris.Wrap(err, "fetcher: create scratch dir")
	}
	src.scratch = dir
	return nil
}

// remoteScheme reports the lower-cased URL scheme of input when it names a
// remote source. Single-letter schemes are Windows drive letters.
func remoteScheme(input string) (string, bool) {
	u, err := url.Parse(input)
	if err != nil || len(u.Scheme) < 2 || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme), true
}

// remoteName keeps the URL's base name so ingest can pick a reader by
// extension.
func remoteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "input.csv"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "input.csv"
	}
	return name
}
