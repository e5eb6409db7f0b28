package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Checks != 2 {
		t.Errorf("checks = %d, want 2", body.Checks)
	}
}

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/01ABC")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	body := scrape(t, ts.URL)
	for _, name := range []string{
		"parcheck_http_requests_total",
		"parcheck_http_request_duration_seconds",
		"parcheck_http_requests_in_flight",
		"parcheck_event_streams",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}

	// Run IDs are folded into the route pattern.
	if !strings.Contains(body, `route="/v1/runs/{id}"`) {
		t.Error(`metrics output missing route="/v1/runs/{id}"`)
	}
	if strings.Contains(body, "01ABC") {
		t.Error("raw run ID leaked into metric labels")
	}
}

func TestMetricsScrapeNotCounted(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	scrape(t, ts.URL)
	body := scrape(t, ts.URL)
	if strings.Contains(body, `route="/metrics"`) {
		t.Error("scrapes of /metrics should not be counted")
	}
}
