package clips

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/doyensec/safeurl"
	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultRPS          = 5
	globalLimiterBurst  = 5
	maxRedirects        = 5
	maxBodySizeMB       = 5
	maxBodySizeBytes    = maxBodySizeMB * 1024 * 1024
	hostLimiterRate     = 1
	hostLimiterBurst    = 2

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.9"
)

var videoContentTypes = []string{"video", "mp4", "octet-stream"}

// Client is the network surface host strategies are allowed to use.
type Client interface {
	// Page fetches an HTML page.
	Page(ctx context.Context, rawURL string) ([]byte, error)
	// Validate checks that rawURL serves playable video.
	Validate(ctx context.Context, rawURL string) error
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	RPS       float64
	HostRPS   float64
	Timeout   time.Duration
	SSRFGuard bool
	UserAgent string

	// HTTPClient replaces the default client. Used by tests.
	HTTPClient *http.Client
}

// Fetcher performs rate limited page fetches and clip validation against
// third-party video hosts.
type Fetcher struct {
	client       *http.Client
	globalLimit  *rate.Limiter
	hostLimiters map[string]*rate.Limiter
	hostRate     rate.Limit
	mu           sync.RWMutex
	userAgent    string
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}

	if opts.RPS <= 0 {
		opts.RPS = defaultRPS
	}

	if opts.HostRPS <= 0 {
		opts.HostRPS = hostLimiterRate
	}

	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient(opts.Timeout, opts.SSRFGuard)
	}

	return &Fetcher{
		client:       client,
		globalLimit:  rate.NewLimiter(rate.Limit(opts.RPS), globalLimiterBurst),
		hostLimiters: make(map[string]*rate.Limiter),
		hostRate:     rate.Limit(opts.HostRPS),
		userAgent:    opts.UserAgent,
	}
}

func newHTTPClient(timeout time.Duration, guard bool) *http.Client {
	if guard {
		config := safeurl.GetConfigBuilder().
			SetTimeout(timeout).
			SetAllowedSchemes("http", "https").
			SetAllowedPorts(80, 443).
			Build()

		return safeurl.Client(config).Client
	}

	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return coreerrors.ErrTooManyRedirects
			}

			return nil
		},
	}
}

// Page fetches rawURL and returns at most 5MB of the body.
func (f *Fetcher) Page(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.do(ctx, http.MethodGet, rawURL, func(req *http.Request) {
		req.Header.Set("Accept", acceptHTML)
		req.Header.Set("Referer", rawURL)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", coreerrors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return body, nil
}

// Validate issues a HEAD request and accepts any 2xx answer whose content type
// looks like video. Hosts that refuse HEAD get a single-byte ranged GET.
func (f *Fetcher) Validate(ctx context.Context, rawURL string) error {
	resp, err := f.do(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return err
	}

	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		resp, err = f.do(ctx, http.MethodGet, rawURL, func(req *http.Request) {
			req.Header.Set("Range", "bytes=0-0")
		})
		if err != nil {
			return err
		}

		_ = resp.Body.Close()
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", coreerrors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, t := range videoContentTypes {
		if strings.Contains(contentType, t) {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", coreerrors.ErrNotVideo, contentType)
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, decorate func(*http.Request)) (*http.Response, error) {
	if err := f.globalLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("global rate limiter wait: %w", err)
	}

	if err := f.hostLimiter(hostOf(rawURL)).Wait(ctx); err != nil {
		return nil, fmt.Errorf("host rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)

	if decorate != nil {
		decorate(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		_ = resp.Body.Close()

		return nil, fmt.Errorf("%s %s: %w", method, rawURL, coreerrors.ErrRateLimited)
	}

	return resp, nil
}

func (f *Fetcher) hostLimiter(host string) *rate.Limiter {
	f.mu.RLock()
	limiter, exists := f.hostLimiters[host]
	f.mu.RUnlock()

	if exists {
		return limiter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double check
	if limiter, exists := f.hostLimiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(f.hostRate, hostLimiterBurst)
	f.hostLimiters[host] = limiter

	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Hostname())
}
