package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"cardcat/internal/config"
	"cardcat/internal/logging"
	"cardcat/internal/metrics"
)

// Lane selects the pacing applied to a request.
type Lane int

const (
	// LaneBulk carries collection, named, printing and image requests.
	LaneBulk Lane = iota
	// LaneSearch carries search requests and is paced globally.
	LaneSearch
)

func (l Lane) String() string {
	if l == LaneSearch {
		return "search"
	}
	return "bulk"
}

// maxFreeRateLimitWaits bounds rate-limit waits that do not consume attempts.
const maxFreeRateLimitWaits = 20

// Policy controls retries for one request.
type Policy struct {
	MaxAttempts        int
	FreeRateLimitWaits bool
}

var (
	// DefaultPolicy applies the fetcher's attempt budget to every failure.
	DefaultPolicy = Policy{}
	// ImagePolicy waits out rate limits without spending attempts.
	ImagePolicy = Policy{FreeRateLimitWaits: true}
)

// Request describes one catalog call. Path is relative to the base URL
// unless it is absolute.
type Request struct {
	Lane   Lane
	Method string
	Path   string
	Query  map[string]string
	Body   any
}

// Response is a successful (2xx) catalog response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Settings configures a Fetcher.
type Settings struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	SearchInterval    time.Duration
	SearchConcurrency int
	BulkConcurrency   int
	MaxAttempts       int
	RetryBase         time.Duration
	RetryMax          time.Duration
}

// SettingsFromConfig maps the [catalog] section onto fetcher settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	base, max := cfg.RetryBackoff()
	return Settings{
		BaseURL:           cfg.Catalog.BaseURL,
		UserAgent:         cfg.Catalog.UserAgent,
		Timeout:           cfg.CatalogTimeout(),
		SearchInterval:    cfg.SearchInterval(),
		SearchConcurrency: cfg.Catalog.SearchConcurrency,
		BulkConcurrency:   cfg.Catalog.BulkConcurrency,
		MaxAttempts:       cfg.Catalog.MaxAttempts,
		RetryBase:         base,
		RetryMax:          max,
	}
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logging.NewComponentLogger(logger, "catalog")
		}
	}
}

// WithSleeper overrides how free rate-limit waits sleep.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// Fetcher issues paced, retried requests against the catalog.
type Fetcher struct {
	http          *resty.Client
	httpClient    *http.Client
	searchLimiter *rate.Limiter
	searchSem     *semaphore.Weighted
	bulkSem       *semaphore.Weighted
	maxAttempts   int
	retryBase     time.Duration
	retryMax      time.Duration
	sleep         func(context.Context, time.Duration) error
	now           func() time.Time
	logger        *slog.Logger
}

// NewFetcher constructs a fetcher from settings.
func NewFetcher(s Settings, opts ...Option) *Fetcher {
	if s.SearchInterval <= 0 {
		s.SearchInterval = 100 * time.Millisecond
	}
	if s.SearchConcurrency <= 0 {
		s.SearchConcurrency = 6
	}
	if s.BulkConcurrency <= 0 {
		s.BulkConcurrency = 10
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 4
	}
	if s.RetryBase <= 0 {
		s.RetryBase = 250 * time.Millisecond
	}
	if s.RetryMax < s.RetryBase {
		s.RetryMax = s.RetryBase
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}

	f := &Fetcher{
		searchLimiter: rate.NewLimiter(rate.Every(s.SearchInterval), 1),
		searchSem:     semaphore.NewWeighted(int64(s.SearchConcurrency)),
		bulkSem:       semaphore.NewWeighted(int64(s.BulkConcurrency)),
		maxAttempts:   s.MaxAttempts,
		retryBase:     s.RetryBase,
		retryMax:      s.RetryMax,
		sleep:         sleepWithContext,
		now:           time.Now,
		logger:        logging.NewComponentLogger(nil, "catalog"),
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.httpClient != nil {
		f.http = resty.NewWithClient(f.httpClient)
	} else {
		f.http = resty.New()
	}
	f.http.SetBaseURL(s.BaseURL).
		SetTimeout(s.Timeout).
		SetHeader("Accept", "application/json")
	if s.UserAgent != "" {
		f.http.SetHeader("User-Agent", s.UserAgent)
	}
	return f
}

// Do sends req, retrying according to policy. Non-2xx results surface as
// *StatusError and transport failures as *TransportError.
func (f *Fetcher) Do(ctx context.Context, req Request, policy Policy) (*Response, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = f.maxAttempts
	}

	var resp *Response
	err := retry.Do(
		func() error {
			r, err := f.attempt(ctx, req, policy)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.Delay(f.retryBase),
		retry.MaxJitter(f.retryBase),
		retry.DelayType(f.retryDelay),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= attempts {
				return
			}
			reason := retryReason(err)
			metrics.UpstreamRetry(reason)
			f.logger.Debug("catalog request retrying",
				logging.String("path", req.Path),
				logging.String("lane", req.Lane.String()),
				logging.Int("attempt", int(n)+1),
				logging.String("reason", reason),
				logging.Error(err),
			)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return resp, nil
}

// attempt performs one attempt. Free rate-limit waits loop here so they
// never reach the retry budget.
func (f *Fetcher) attempt(ctx context.Context, req Request, policy Policy) (*Response, error) {
	freeWaits := 0
	for {
		resp, err := f.dispatch(ctx, req)
		if err != nil {
			var transport *TransportError
			if ctx.Err() != nil || !errors.As(err, &transport) {
				return nil, retry.Unrecoverable(err)
			}
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), f.now()),
			Body:       string(resp.Body),
		}
		switch statusErr.Kind() {
		case KindRateLimited:
			if !policy.FreeRateLimitWaits || freeWaits >= maxFreeRateLimitWaits {
				return nil, statusErr
			}
			wait := statusErr.RetryAfter
			if wait <= 0 {
				wait = f.backoff(uint(freeWaits))
			}
			freeWaits++
			metrics.UpstreamRetry("rate_limited_free")
			f.logger.Debug("catalog rate limited, waiting",
				logging.String("path", req.Path),
				logging.Duration("wait", wait),
				logging.Int("free_waits", freeWaits),
			)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, retry.Unrecoverable(err)
			}
		case KindUpstream:
			return nil, statusErr
		default:
			return nil, retry.Unrecoverable(statusErr)
		}
	}
}

func (f *Fetcher) dispatch(ctx context.Context, req Request) (*Response, error) {
	sem := f.bulkSem
	if req.Lane == LaneSearch {
		sem = f.searchSem
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s lane: %w", req.Lane, err)
	}
	defer sem.Release(1)
	if req.Lane == LaneSearch {
		if err := f.searchLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("search pacing: %w", err)
		}
	}

	r := f.http.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	res, err := r.Execute(method, req.Path)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveUpstream(req.Lane.String(), "transport_error", elapsed)
		return nil, &TransportError{Err: err}
	}
	metrics.ObserveUpstream(req.Lane.String(), outcomeFor(res.StatusCode()), elapsed)
	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}, nil
}

// retryDelay honours Retry-After on rate limits and otherwise backs off
// exponentially with jitter, capped at the configured maximum.
func (f *Fetcher) retryDelay(n uint, err error, cfg *retry.Config) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Kind() == KindRateLimited && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter
	}
	delay := retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, cfg)
	if delay > f.retryMax || delay < 0 {
		delay = f.retryMax
	}
	return delay
}

func (f *Fetcher) backoff(n uint) time.Duration {
	if n > 16 {
		n = 16
	}
	delay := f.retryBase << n
	if delay > f.retryMax || delay <= 0 {
		delay = f.retryMax
	}
	return delay
}

func retryReason(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Kind().String()
	}
	return "transport"
}

func outcomeFor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
