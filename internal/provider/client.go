package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/costdex/internal/domain"
	"github.com/kailas-cloud/costdex/internal/metrics"
)

// Config holds metering API client settings.
type Config struct {
	BaseURL        string
	APIKey         string
	OrganizationID string
	RequestTimeout time.Duration
	Backoff        BackoffPolicy
	Logger         *zap.Logger
	Metrics        *metrics.Sync // optional
}

// Client talks to the provider's billing/metering API. Requests carry the
// API key header; rate limits and timeouts are retried with exponential
// backoff up to the policy bound, non-recoverable HTTP errors fail
// immediately with the status and body attached.
type Client struct {
	baseURL string
	apiKey  string
	orgID   string
	http    *http.Client
	backoff BackoffPolicy
	log     *zap.Logger
	metrics *metrics.Sync

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(context.Context, time.Duration) error
}

// New creates a metering API client.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		orgID:   cfg.OrganizationID,
		http:    &http.Client{Timeout: timeout},
		backoff: cfg.Backoff,
		log:     log,
		metrics: cfg.Metrics,
		sleep:   sleepCtx,
	}
}

// FetchUsage streams all usage records for the window to visit, following
// next-page tokens until the sequence is exhausted. Fetching stops at the
// first error from visit.
func (c *Client) FetchUsage(ctx context.Context, w domain.Window, visit func(domain.UsageRecord) error) error {
	token := ""
	for {
		records, next, err := c.FetchUsagePage(ctx, w, token)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := visit(rec); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		token = next
	}
}

// FetchUsagePage fetches a single page of usage records for the window.
// An empty next token means the last page. The page request is restartable:
// retrying with the same token re-fetches the same page.
func (c *Client) FetchUsagePage(
	ctx context.Context, w domain.Window, pageToken string,
) ([]domain.UsageRecord, string, error) {
	q := url.Values{}
	q.Set("from", w.Start.UTC().Format(time.RFC3339))
	q.Set("to", w.End.UTC().Format(time.RFC3339))
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	u := fmt.Sprintf("%s/billing/usage/%s?%s", c.baseURL, url.PathEscape(c.orgID), q.Encode())

	body, err := c.getWithRetry(ctx, u)
	if err != nil {
		return nil, "", err
	}

	var page usagePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("parse usage page: %w", err)
	}

	records := make([]domain.UsageRecord, 0, len(page.Records))
	for _, it := range page.Records {
		records = append(records, it.toRecord(w, c.log))
	}
	return records, page.NextPage, nil
}

// GetOrganization looks up the org, mainly for its display name.
func (c *Client) GetOrganization(ctx context.Context) (domain.Organization, error) {
	u := fmt.Sprintf("%s/organizations/%s", c.baseURL, url.PathEscape(c.orgID))

	body, err := c.getWithRetry(ctx, u)
	if err != nil {
		return domain.Organization{}, err
	}

	var org orgResponse
	if err := json.Unmarshal(body, &org); err != nil {
		return domain.Organization{}, fmt.Errorf("parse organization: %w", err)
	}
	if org.ID == "" {
		org.ID = c.orgID
	}
	return domain.Organization{ID: org.ID, Name: org.Name}, nil
}

// TotalCost returns the aggregate cost for the window, used as forecast input.
func (c *Client) TotalCost(ctx context.Context, w domain.Window) (float64, error) {
	q := url.Values{}
	q.Set("from", w.Start.UTC().Format(time.RFC3339))
	q.Set("to", w.End.UTC().Format(time.RFC3339))
	u := fmt.Sprintf("%s/billing/costs/%s?%s", c.baseURL, url.PathEscape(c.orgID), q.Encode())

	body, err := c.getWithRetry(ctx, u)
	if err != nil {
		return 0, err
	}

	var total costsTotal
	if err := json.Unmarshal(body, &total); err != nil {
		return 0, fmt.Errorf("parse costs total: %w", err)
	}
	return total.Costs.Total, nil
}

// getWithRetry issues an authenticated GET. HTTP 429 and transport
// timeouts are retried with backoff up to the policy bound; 5xx likewise.
// Any other non-200 fails immediately and is never retried.
func (c *Client) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		body, retryable, err := c.get(ctx, u)
		if err == nil {
			c.countOutcome(metrics.OutcomeOK)
			return body, nil
		}
		if !retryable {
			c.countOutcome(metrics.OutcomeError)
			return nil, err
		}
		lastErr = err

		if attempt >= c.backoff.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempt+1, lastErr)
		}

		delay := c.retryDelay(attempt, err)
		c.log.Debug("retryable API failure, backing off",
			zap.String("url", u),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if c.metrics != nil {
			c.metrics.APIRetries.Inc()
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// get performs one request. The bool reports whether the failure may be
// retried.
func (c *Client) get(ctx context.Context, u string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, false, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Parent cancellation is terminal; per-request timeouts are not.
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("request aborted: %w", ctx.Err())
		}
		c.countOutcome(metrics.OutcomeTimeout)
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("read body: %w", err)
		}
		return body, false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		c.countOutcome(metrics.OutcomeRateLimited)
		return nil, true, rateLimitError(resp)

	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: HTTP %d", resp.StatusCode)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, false, domain.NewAPIError(resp.StatusCode, string(body))
	}
}

// retryDelay honors a Retry-After hint on rate-limit responses, otherwise
// falls back to the exponential policy.
func (c *Client) retryDelay(attempt int, err error) time.Duration {
	var rle *rateLimited
	if errors.As(err, &rle) && rle.retryAfter > 0 {
		return rle.retryAfter
	}
	return c.backoff.Delay(attempt)
}

func (c *Client) countOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.APIRequests.WithLabelValues(outcome).Inc()
	}
}

// rateLimited carries the provider-suggested retry delay, if any.
type rateLimited struct {
	retryAfter time.Duration
}

func (e *rateLimited) Error() string {
	return "rate limited: HTTP 429"
}

func rateLimitError(resp *http.Response) error {
	var after time.Duration
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			after = time.Duration(secs) * time.Second
		}
	}
	return &rateLimited{retryAfter: after}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
