package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadbatch/internal/resilience"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing download rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher downloads over http and https. Failed attempts are classified
// by status and retried with the resilience policy.
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	limiter *AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher; zero options take defaults.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "leadbatch/1.0"
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(opts.RateLimit, 1),
	}
}

// Download fetches rawURL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	retry := f.opts.Retry
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("fetcher: download failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	body, _, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		return f.attempt(ctx, rawURL)
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: download")
	}
	return body, nil
}

func (f *HTTPFetcher) attempt(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, resilience.NewFatalError(eris.Wrap(err, "fetcher: create request"), 0)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "fetcher: send request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: send request"), 0)
	}
	if resp.StatusCode == http.StatusOK {
		f.limiter.OnSuccess()
		return resp.Body, nil
	}

	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		f.limiter.OnRateLimit()
	}
	return nil, resilience.ClassifyHTTP(eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
}

// DownloadToFile implements Fetcher.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck
	return writeFile(path, body)
}

func writeFile(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	n, err := io.Copy(file, r)
	if err != nil {
		_ = file.Close()
		return n, eris.Wrap(err, "fetcher: write file")
	}
	return n, eris.Wrap(file.Close(), "fetcher: close file")
}
