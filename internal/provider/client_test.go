package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kailas-cloud/costdex/internal/domain"
)

func testWindow() domain.Window {
	return domain.Window{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

// newTestClient points a client at the test server with backoff waits
// recorded instead of slept.
func newTestClient(srv *httptest.Server) (*Client, *[]time.Duration) {
	c := New(Config{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		OrganizationID: "org-123",
		Backoff: BackoffPolicy{
			MaxRetries:     3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
		},
	})
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func usagePageBody(count int, next string) string {
	records := ""
	for i := 0; i < count; i++ {
		if i > 0 {
			records += ","
		}
		records += fmt.Sprintf(`{
			"deployment_id": "dep-%d",
			"deployment_name": "cluster-%d",
			"resource": "res-1",
			"metric": "capacity",
			"from": "2026-03-01T00:00:00Z",
			"to": "2026-03-01T01:00:00Z",
			"quantity": 2,
			"unit": "hour",
			"rate": {"value": 0.5, "unit": "credit"},
			"cost": 1.0
		}`, i, i)
	}
	return fmt.Sprintf(`{"records": [%s], "next_page": %q}`, records, next)
}

func TestFetchUsage_Pagination(t *testing.T) {
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "ApiKey test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/billing/usage/org-123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		token := r.URL.Query().Get("page_token")
		tokens = append(tokens, token)
		switch token {
		case "":
			fmt.Fprint(w, usagePageBody(100, "p2"))
		case "p2":
			fmt.Fprint(w, usagePageBody(100, "p3"))
		case "p3":
			fmt.Fprint(w, usagePageBody(50, ""))
		default:
			t.Errorf("unexpected page token %q", token)
			http.Error(w, "bad token", http.StatusBadRequest)
		}
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	var visited int
	err := c.FetchUsage(context.Background(), testWindow(), func(rec domain.UsageRecord) error {
		visited++
		if rec.ResourceID != "res-1" {
			t.Errorf("ResourceID = %q", rec.ResourceID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FetchUsage: %v", err)
	}
	if visited != 250 {
		t.Errorf("visited %d records, want 250", visited)
	}
	if len(tokens) != 3 || tokens[1] != "p2" || tokens[2] != "p3" {
		t.Errorf("page tokens = %v", tokens)
	}
}

func TestFetchUsage_VisitErrorStops(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, usagePageBody(10, "more"))
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	boom := errors.New("boom")
	err := c.FetchUsage(context.Background(), testWindow(), func(domain.UsageRecord) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d requests after visit error, want 1", calls)
	}
}

func TestFetchUsagePage_RateLimitRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts <= 2 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, usagePageBody(1, ""))
	}))
	defer srv.Close()
	c, slept := newTestClient(srv)

	records, next, err := c.FetchUsagePage(context.Background(), testWindow(), "")
	if err != nil {
		t.Fatalf("FetchUsagePage: %v", err)
	}
	if len(records) != 1 || next != "" {
		t.Errorf("got %d records, next %q", len(records), next)
	}
	if attempts != 3 {
		t.Errorf("server saw %d attempts, want 3", attempts)
	}
	// Retry-After wins over the exponential policy.
	if len(*slept) != 2 || (*slept)[0] != 7*time.Second {
		t.Errorf("slept = %v, want two 7s waits", *slept)
	}
}

func TestFetchUsagePage_RetriesExhausted(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	_, _, err := c.FetchUsagePage(context.Background(), testWindow(), "")
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	// MaxRetries=3 means 4 attempts total.
	if attempts != 4 {
		t.Errorf("server saw %d attempts, want 4", attempts)
	}
}

func TestFetchUsagePage_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": "invalid api key"}`)
	}))
	defer srv.Close()
	c, slept := newTestClient(srv)

	_, _, err := c.FetchUsagePage(context.Background(), testWindow(), "")
	if !errors.Is(err, domain.ErrAPIFailure) {
		t.Fatalf("err = %v, want ErrAPIFailure", err)
	}
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want APIError with status 403", err)
	}
	if attempts != 1 {
		t.Errorf("server saw %d attempts, want 1", attempts)
	}
	if len(*slept) != 0 {
		t.Errorf("client backed off on a non-retryable error: %v", *slept)
	}
}

func TestFetchUsagePage_WindowQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from"); got != "2026-03-01T00:00:00Z" {
			t.Errorf("from = %q", got)
		}
		if got := r.URL.Query().Get("to"); got != "2026-03-02T00:00:00Z" {
			t.Errorf("to = %q", got)
		}
		fmt.Fprint(w, usagePageBody(0, ""))
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	if _, _, err := c.FetchUsagePage(context.Background(), testWindow(), ""); err != nil {
		t.Fatalf("FetchUsagePage: %v", err)
	}
}

func TestGetOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/organizations/org-123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"id": "org-123", "name": "Acme Corp"}`)
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	org, err := c.GetOrganization(context.Background())
	if err != nil {
		t.Fatalf("GetOrganization: %v", err)
	}
	if org.ID != "org-123" || org.Name != "Acme Corp" {
		t.Errorf("org = %+v", org)
	}
}

func TestGetOrganization_FallbackID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name": "Acme Corp"}`)
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	org, err := c.GetOrganization(context.Background())
	if err != nil {
		t.Fatalf("GetOrganization: %v", err)
	}
	if org.ID != "org-123" {
		t.Errorf("ID = %q, want configured org-123", org.ID)
	}
}

func TestTotalCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/billing/costs/org-123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"costs": {"total": 1234.56}}`)
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	total, err := c.TotalCost(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("TotalCost: %v", err)
	}
	if total != 1234.56 {
		t.Errorf("total = %f, want 1234.56", total)
	}
}

func TestUsageItem_TimestampFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"records": [{
			"deployment_id": "dep-1",
			"resource": "res-1",
			"from": "not-a-timestamp",
			"to": "",
			"quantity": 1,
			"unit": "hour"
		}], "next_page": ""}`)
	}))
	defer srv.Close()
	c, _ := newTestClient(srv)

	w := testWindow()
	records, _, err := c.FetchUsagePage(context.Background(), w, "")
	if err != nil {
		t.Fatalf("FetchUsagePage: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if !records[0].WindowStart.Equal(w.Start) {
		t.Errorf("WindowStart = %v, want window start fallback", records[0].WindowStart)
	}
	if !records[0].WindowEnd.Equal(w.End) {
		t.Errorf("WindowEnd = %v, want window end fallback", records[0].WindowEnd)
	}
}
