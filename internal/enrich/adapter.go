package enrich

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadbatch/internal/cost"
	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// Options configures an Adapter.
type Options struct {
	Retry            resilience.RetryConfig
	CallTimeout      time.Duration
	RateLimit        float64 // calls per second, shared by every worker
	Burst            int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Prompt           string
}

// Result is a successful batch call.
type Result struct {
	BatchID  int
	Rows     map[int]model.EnrichmentResult
	Attempts int
	Latency  time.Duration
	CostUSD  float64
}

// Adapter wraps a Backend with the shared rate limiter, per-attempt
// deadline, retry policy, and circuit breaker. One Adapter is shared by all
// workers of a run.
type Adapter struct {
	backend Backend
	calc    *cost.Calculator
	limiter *rate.Limiter
	breaker *resilience.Breaker
	opts    Options
	stats   Stats
}

// NewAdapter creates an Adapter. calc may be nil, in which case costs are 0.
func NewAdapter(backend Backend, calc *cost.Calculator, opts Options) *Adapter {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	return &Adapter{
		backend: backend,
		calc:    calc,
		limiter: rate.NewLimiter(limit, opts.Burst),
		breaker: resilience.NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		opts:    opts,
	}
}

// Backend returns the wrapped backend name.
func (a *Adapter) Backend() string {
	return a.backend.Name()
}

// MaxAttempts is the retry cap applied to every batch.
func (a *Adapter) MaxAttempts() int {
	if a.opts.Retry.MaxAttempts <= 0 {
		return resilience.DefaultRetryConfig().MaxAttempts
	}
	return a.opts.Retry.MaxAttempts
}

// ConcurrencyCap bounds the configured worker count by what the rate limit
// can start within one call timeout. More workers than that would only queue
// on the limiter.
func (a *Adapter) ConcurrencyCap(configured int) int {
	if configured < 1 {
		configured = 1
	}
	if a.limiter.Limit() == rate.Inf {
		return configured
	}
	capacity := int(math.Ceil(float64(a.limiter.Limit())*a.opts.CallTimeout.Seconds())) + a.limiter.Burst() - 1
	if capacity < 1 {
		capacity = 1
	}
	if configured > capacity {
		return capacity
	}
	return configured
}

// Call runs one batch through the backend. It returns:
//   - a Result on success;
//   - a *CancelledError when ctx was cancelled before the retry budget ran
//     out (the batch stays pending);
//   - an error satisfying resilience.IsFatal for non-retryable failures;
//   - any other error once retries are exhausted.
//
// An attempt that has started is never interrupted by ctx; it only answers to
// its own deadline. Cancellation prevents further attempts and backoff sleeps.
func (a *Adapter) Call(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		req.Prompt = a.opts.Prompt
	}
	log := zap.L().With(
		zap.String("backend", a.backend.Name()),
		zap.Int("batch_id", req.BatchID),
		zap.Int("rows", len(req.Rows)),
	)

	retry := a.opts.Retry
	retry.OnRetry = resilience.RetryLogger(a.backend.Name(), req.BatchID)

	a.stats.calls.Add(1)
	start := time.Now()
	var spent float64

	rows, attempts, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (map[int]model.EnrichmentResult, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "enrich: wait for rate limit")
		}
		if err := a.breaker.Allow(); err != nil {
			return nil, err
		}

		a.stats.attempts.Add(1)
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.CallTimeout)
		defer cancel()

		callStart := time.Now()
		resp, err := a.backend.Call(attemptCtx, req)
		a.stats.latencyMs.Add(time.Since(callStart).Milliseconds())
		if err == nil && resp != nil {
			spent += a.account(resp)
		}
		if err == nil && resp == nil {
			err = resilience.NewTransientError(eris.New("enrich: backend returned no response"), 0)
		}
		if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !resilience.IsFatal(err) {
			err = resilience.NewTransientError(eris.Wrapf(err, "enrich: batch %d call exceeded %s", req.BatchID, a.opts.CallTimeout), 0)
		}
		a.breaker.Record(err)
		if err != nil {
			return nil, err
		}
		return toEnrichment(req, resp)
	})
	latency := time.Since(start)

	if err != nil {
		interrupted := attempts < a.MaxAttempts() || errors.Is(err, context.Canceled)
		if ctx.Err() != nil && interrupted && !resilience.IsFatal(err) {
			log.Info("enrichment interrupted by cancellation", zap.Int("attempts", attempts), zap.Error(err))
			return nil, &CancelledError{BatchID: req.BatchID, Attempts: attempts, Err: err}
		}
		a.stats.failures.Add(1)
		log.Warn("enrichment call failed",
			zap.Int("attempts", attempts),
			zap.String("error_kind", resilience.ErrorKind(err)),
			zap.Error(err),
		)
		return nil, &AttemptError{Attempts: attempts, Latency: latency, CostUSD: spent, Err: err}
	}

	log.Debug("enrichment call succeeded",
		zap.Int("attempts", attempts),
		zap.Duration("latency", latency),
		zap.Float64("cost_usd", spent),
	)
	return &Result{
		BatchID:  req.BatchID,
		Rows:     rows,
		Attempts: attempts,
		Latency:  latency,
		CostUSD:  spent,
	}, nil
}

func (a *Adapter) account(resp *Response) float64 {
	u := resp.Usage
	a.stats.inputTokens.Add(u.InputTokens)
	a.stats.outputTokens.Add(u.OutputTokens)
	if a.calc == nil {
		return 0
	}
	c := a.calc.Tokens(resp.Model, u.InputTokens, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
	a.stats.costMicroUSD.Add(int64(math.Round(c * 1e6)))
	return c
}

// AttemptError is a terminal batch failure. It keeps the attempt count and
// the spend so the caller can record them.
type AttemptError struct {
	Attempts int
	Latency  time.Duration
	CostUSD  float64
	Err      error
}

func (e *AttemptError) Error() string {
	return e.Err.Error()
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Stats counts adapter activity across all workers.
type Stats struct {
	calls        atomic.Int64
	attempts     atomic.Int64
	failures     atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	costMicroUSD atomic.Int64
	latencyMs    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Backend        string  `yaml:"backend" json:"backend"`
	Calls          int64   `yaml:"calls" json:"calls"`
	Attempts       int64   `yaml:"attempts" json:"attempts"`
	Failures       int64   `yaml:"failures" json:"failures"`
	InputTokens    int64   `yaml:"input_tokens" json:"input_tokens"`
	OutputTokens   int64   `yaml:"output_tokens" json:"output_tokens"`
	CostUSD        float64 `yaml:"cost_usd" json:"cost_usd"`
	TotalLatencyMs int64   `yaml:"total_latency_ms" json:"total_latency_ms"`
}

// Stats returns a snapshot of the adapter's counters.
func (a *Adapter) Stats() StatsSnapshot {
	return StatsSnapshot{
		Backend:        a.backend.Name(),
		Calls:          a.stats.calls.Load(),
		Attempts:       a.stats.attempts.Load(),
		Failures:       a.stats.failures.Load(),
		InputTokens:    a.stats.inputTokens.Load(),
		OutputTokens:   a.stats.outputTokens.Load(),
		CostUSD:        float64(a.stats.costMicroUSD.Load()) / 1e6,
		TotalLatencyMs: a.stats.latencyMs.Load(),
	}
}
