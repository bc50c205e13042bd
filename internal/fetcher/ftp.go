package fetcher

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadbatch/internal/resilience"
)

// FTPFetcher downloads files over FTP. Credentials come from the URL's user
// info; without them the login is anonymous.
type FTPFetcher struct {
	opts Options
}

// NewFTPFetcher creates an FTPFetcher.
func NewFTPFetcher(opts Options) *FTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &FTPFetcher{opts: opts}
}

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

// parseFTPURL extracts host (with port), path and credentials from an FTP URL.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "fetcher: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("fetcher: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("fetcher: empty path in ftp url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil && u.User.Username() != "" {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// classifyFTPErr treats 5xx replies as permanent and everything else
// (4xx replies, dial and I/O errors) as transient.
func classifyFTPErr(err error, action string) error {
	wrapped := eris.Wrap(err, "fetcher: ftp "+action)
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return resilience.NewFatalError(wrapped, 0)
	}
	return resilience.NewTransientError(wrapped, 0)
}

// DownloadToFile implements Fetcher.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	t, err := parseFTPURL(ftpURL)
	if err != nil {
		return 0, resilience.NewFatalConfigError("invalid ftp input url", err)
	}

	n, _, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (int64, error) {
		return f.attempt(ctx, t, path)
	})
	return n, err
}

func (f *FTPFetcher) attempt(ctx context.Context, t ftpTarget, path string) (int64, error) {
	zap.L().Debug("fetcher: ftp connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, classifyFTPErr(err, "dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(t.user, t.password); err != nil {
		return 0, classifyFTPErr(err, "login")
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		return 0, classifyFTPErr(err, "retrieve")
	}
	defer resp.Close() //nolint:errcheck

	n, err := writeFile(path, resp)
	if err != nil {
		return n, resilience.NewTransientError(err, 0)
	}
	return n, nil
}
