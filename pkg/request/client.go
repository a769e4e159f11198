package request

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"inatmap/pkg/cache"
	"inatmap/pkg/logging"
	"inatmap/pkg/tracker"
	"inatmap/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("MyiNatMap/%s (+https://dev.krystelledenis.com)", version.Version)

// ClientConfig tunes the outbound request behaviour.
type ClientConfig struct {
	Retries   int           // extra attempts after the first one on 429/5xx/network errors
	Timeout   time.Duration // per-attempt HTTP timeout
	Gap       time.Duration // minimum spacing between two requests to the same provider
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Client handles HTTP requests with per-provider queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	cooldown   *Cooldown
	cfg        ClientConfig

	// Queues per provider (host)
	queues map[string]chan job
	mu     sync.Mutex // Protects queues map
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client. A nil cache disables caching.
func New(c cache.Cacher, t *tracker.Tracker, cfg ClientConfig) *Client {
	if c == nil {
		c = cache.Nop{}
	}
	if t == nil {
		t = tracker.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      c,
		tracker:    t,
		cooldown:   NewCooldown(cfg.BaseDelay, cfg.MaxDelay),
		cfg:        cfg,
		queues:     make(map[string]chan job),
	}
}

// Tracker returns the stats tracker fed by this client.
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// Cooldowns reports the providers that are currently being held back.
func (c *Client) Cooldowns() map[string]CooldownState {
	return c.cooldown.Snapshot()
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	// 1. Check Cache (Only if key is provided)
	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan})

	// 3. Wait for Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

func normalizeProvider(host string) string {
	host = strings.ToLower(host)
	// Load-balanced tile mirrors (a./b./c.) count as one provider
	if strings.HasSuffix(host, ".tile.openstreetmap.org") {
		return "tile.openstreetmap.org"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// Blocks while the queue is full, throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		if j.req.Context().Err() != nil {
			slog.Warn("Job dropped from queue (context expired)", "provider", provider, "error", j.req.Context().Err())
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		if err := c.cooldown.Wait(j.req.Context(), provider); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}

		start := time.Now()
		body, retryAfter, err := c.executeWithBackoff(j.req)
		logging.RequestLogger.Info("Upstream Request",
			"provider", provider, "path", j.req.URL.Path, "duration", time.Since(start), "ok", err == nil)

		if err == nil {
			c.cooldown.Success(provider)
			c.tracker.TrackAPISuccess(provider)
			if j.cacheKey != "" {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		} else {
			c.cooldown.Failure(provider, retryAfter)
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}

		if c.cfg.Gap > 0 {
			time.Sleep(c.cfg.Gap)
		}
	}
}

// executeWithBackoff attempts the request, retrying with exponential backoff on retryable errors.
// The returned duration is the last Retry-After hint seen, zero if none.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, time.Duration, error) {
	maxAttempts := c.cfg.Retries + 1
	var lastErr error
	var retryAfter time.Duration

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			sleepDur := time.Duration(math.Pow(2, float64(attempt-1))) * c.cfg.BaseDelay
			// A Retry-After hint stretches the pause, still capped at MaxDelay
			sleepDur = min(max(sleepDur, retryAfter), c.cfg.MaxDelay)
			select {
			case <-time.After(sleepDur):
			case <-req.Context().Done():
				return nil, retryAfter, req.Context().Err()
			}
		}

		if req.Context().Err() != nil {
			return nil, retryAfter, req.Context().Err()
		}

		logging.Trace(slog.Default(), "Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, retryAfter, req.Context().Err()
			}
			slog.Warn("Request failed", "url", req.URL.Redacted(), "attempt", attempt+1, "error", err)
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			resp.Body.Close()
			slog.Warn("API Backoff", "retry_after", retryAfter, "status", resp.StatusCode, "url", req.URL.Redacted(), "attempt", attempt+1)
			lastErr = fmt.Errorf("api error: status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("api error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("read error: %w", err)
		}
		return body, 0, nil
	}

	if maxAttempts > 1 {
		return nil, retryAfter, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, retryAfter, lastErr
}
