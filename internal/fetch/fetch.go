// Package fetch provides rate-limited, retrying document retrieval with an
// on-disk content cache. One Fetcher presents a single polite crawler
// identity: requests are serialized through its rate limiter, robots.txt is
// honored (fail-open), and repeated runs are served from the cache. A
// Fetcher is not safe for concurrent use; the pipeline scrapes sequentially.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the per-attempt HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies the crawler to origin servers.
const DefaultUserAgent = "Mozilla/5.0 (compatible; AgroKB/1.0; +https://fieldwise.example/bot)"

// DefaultRateLimit is the minimum delay between network requests.
const DefaultRateLimit = 1000 * time.Millisecond

// DefaultMaxRetries is how many times a failed fetch is retried before the
// failure is logged and surfaced.
const DefaultMaxRetries = 3

// DefaultBrowserTimeout caps a single headless-browser render, independent
// of the HTTP retry backoff.
const DefaultBrowserTimeout = 30 * time.Second

// DefaultBackoff is the first retry delay; each retry doubles it (1s, 2s, 4s).
const DefaultBackoff = 1 * time.Second

// Error represents a failure fetching one URL. Retryable marks transient
// failures (network errors, 429, 5xx) that the retry loop may attempt again.
type Error struct {
	URL       string
	Message   string
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Stats counts fetcher activity for the run report. CacheWriteFailures in
// particular is observable proof that cache writes are best-effort: they
// are counted and logged, never fatal.
type Stats struct {
	Requests           int
	CacheHits          int
	CacheWrites        int
	CacheWriteFailures int
	Retries            int
	BrowserRenders     int
	RobotsDenied       int
}

// Config configures a Fetcher. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	CacheDir       string // "" disables the disk cache
	RateLimit      time.Duration
	MaxRetries     int
	Backoff        time.Duration // first retry delay, doubled per retry
	Timeout        time.Duration
	BrowserTimeout time.Duration
	UserAgent      string
	ErrorLogPath   string // "" disables the failure log
	RespectRobots  bool
	// BrowserFallback re-fetches through the headless browser when a plain
	// HTTP fetch yields almost no visible text (JS-rendered page).
	BrowserFallback bool
	Verbose         bool
	Client          *http.Client // optional; built from Timeout when nil
}

// DefaultConfig returns the defaults used by the ingestion pipeline.
func DefaultConfig() *Config {
	return &Config{
		RateLimit:       DefaultRateLimit,
		MaxRetries:      DefaultMaxRetries,
		Backoff:         DefaultBackoff,
		Timeout:         DefaultTimeout,
		BrowserTimeout:  DefaultBrowserTimeout,
		UserAgent:       DefaultUserAgent,
		RespectRobots:   true,
		BrowserFallback: true,
	}
}

// Fetcher retrieves HTML pages and PDF payloads with caching, rate
// limiting, robots.txt checks, and retries. Construct with New.
type Fetcher struct {
	client         *http.Client
	limiter        *rate.Limiter
	cache          *diskCache
	robots         *robotsRules
	maxRetries     int
	backoff        time.Duration
	browserTimeout time.Duration
	userAgent      string
	errorLogPath   string
	browserFallbk  bool
	verbose        bool
	stats          Stats
}

// New builds a Fetcher from cfg (nil means DefaultConfig). Creating the
// cache directory is the only operation that can fail; configuration
// problems surface here rather than mid-run.
func New(cfg *Config) (*Fetcher, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BrowserTimeout <= 0 {
		cfg.BrowserTimeout = DefaultBrowserTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	f := &Fetcher{
		client:         client,
		limiter:        rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
		maxRetries:     cfg.MaxRetries,
		backoff:        cfg.Backoff,
		browserTimeout: cfg.BrowserTimeout,
		userAgent:      cfg.UserAgent,
		errorLogPath:   cfg.ErrorLogPath,
		browserFallbk:  cfg.BrowserFallback,
		verbose:        cfg.Verbose,
	}

	if cfg.CacheDir != "" {
		cache, err := newDiskCache(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", cfg.CacheDir, err)
		}
		f.cache = cache
	}
	if cfg.RespectRobots {
		f.robots = newRobotsRules(client, cfg.UserAgent)
	}

	return f, nil
}

// Stats returns a copy of the fetcher's activity counters.
func (f *Fetcher) Stats() Stats {
	return f.stats
}

// FetchHTML retrieves a page as HTML. With useBrowser it renders the page
// in a headless browser instead of a plain GET; otherwise it may still fall
// back to the browser when the plain fetch looks JS-rendered.
func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string, useBrowser bool) (string, error) {
	if data, ok := f.cacheRead(rawURL, extHTML); ok {
		return string(data), nil
	}
	if err := f.checkRobots(ctx, rawURL); err != nil {
		return "", err
	}

	var html string
	op := func(ctx context.Context) error {
		if useBrowser {
			rendered, err := f.renderPage(ctx, rawURL)
			if err != nil {
				return &Error{URL: rawURL, Message: "browser rendering failed", Cause: err, Retryable: true}
			}
			html = rendered
			return nil
		}
		body, _, err := f.get(ctx, rawURL)
		if err != nil {
			return err
		}
		html = string(body)
		return nil
	}

	if err := f.withRetries(ctx, rawURL, op); err != nil {
		return "", err
	}

	if !useBrowser && f.browserFallbk && ShouldUseBrowser(visibleText(html)) {
		f.vlogf("[BROWSER] %s looks JS-rendered, re-fetching with browser", rawURL)
		rendered, err := f.renderPage(ctx, rawURL)
		if err == nil {
			html = rendered
		} else {
			f.vlogf("[BROWSER] fallback render failed for %s: %v (keeping HTTP result)", rawURL, err)
		}
	}

	f.cacheWrite(rawURL, extHTML, []byte(html))
	return html, nil
}

// FetchPDF retrieves a URL's raw payload for PDF parsing. The bytes are
// returned as served; content classification happens downstream, so an HTML
// error page at a .pdf URL comes back intact.
func (f *Fetcher) FetchPDF(ctx context.Context, rawURL string) ([]byte, error) {
	if data, ok := f.cacheRead(rawURL, extPDF); ok {
		return data, nil
	}
	if err := f.checkRobots(ctx, rawURL); err != nil {
		return nil, err
	}

	var payload []byte
	op := func(ctx context.Context) error {
		body, _, err := f.get(ctx, rawURL)
		if err != nil {
			return err
		}
		payload = body
		return nil
	}

	if err := f.withRetries(ctx, rawURL, op); err != nil {
		return nil, err
	}

	f.cacheWrite(rawURL, extPDF, payload)
	return payload, nil
}

// Check issues a single rate-limited GET and reports the HTTP status, used
// by the pre-scrape reachability validation. No cache, no retries.
func (f *Fetcher) Check(ctx context.Context, rawURL string) (int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.stats.Requests++
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, &Error{URL: rawURL, Message: "request failed", Cause: err, Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, nil
}

// withRetries runs op up to 1+maxRetries times with exponential backoff,
// appending a timestamped entry to the error log on final failure.
// Non-retryable errors (4xx other than 429, invalid URLs, robots denials)
// short-circuit.
func (f *Fetcher) withRetries(ctx context.Context, rawURL string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoff << (attempt - 1)
			f.vlogf("[FETCH] retry %d/%d for %s in %s", attempt, f.maxRetries, rawURL, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			f.stats.Retries++
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var fe *Error
		if errors.As(err, &fe) && !fe.Retryable {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	f.logFailure(rawURL, lastErr)
	return lastErr
}

// get performs one rate-limited GET attempt and returns body bytes plus the
// declared Content-Type.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, "", &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &Error{URL: rawURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	f.stats.Requests++
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &Error{URL: rawURL, Message: "HTTP request failed", Cause: err, Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &Error{URL: rawURL, Message: "failed to read response body", Cause: err, Retryable: true}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, resp.Header.Get("Content-Type"), nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, "", &Error{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode), Retryable: true}
	default:
		return nil, "", &Error{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
}

// logFailure appends a timestamped line to the error log. Best-effort: a
// broken log file never fails the run.
func (f *Fetcher) logFailure(rawURL string, fetchErr error) {
	if f.errorLogPath == "" || fetchErr == nil {
		return
	}
	line := fmt.Sprintf("%s\t%s\t%v\n", time.Now().UTC().Format(time.RFC3339), rawURL, fetchErr)
	file, err := os.OpenFile(f.errorLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		f.vlogf("[FETCH] cannot open error log %s: %v", f.errorLogPath, err)
		return
	}
	defer func() { _ = file.Close() }()
	if _, err := file.WriteString(line); err != nil {
		f.vlogf("[FETCH] cannot write error log: %v", err)
	}
}

func (f *Fetcher) vlogf(format string, args ...any) {
	if f.verbose {
		log.Printf(format, args...)
	}
}

// visibleText strips markup and returns the page's visible text, used to
// decide whether a page is JS-rendered.
func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text())
}
