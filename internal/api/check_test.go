package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seantiz/parcheck/internal/checks"
	"github.com/seantiz/parcheck/internal/model"
)

func decodeRecord(t *testing.T, resp *http.Response) model.Result {
	t.Helper()
	var rec model.Result
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec
}

func TestCheckInline(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/check", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Run-Id") == "" {
		t.Error("X-Run-Id header missing")
	}

	rec := decodeRecord(t, resp)
	if rec.Status() != model.StatusOK {
		t.Errorf("status = %q, want OK", rec.Status())
	}
	children, ok := rec[model.FieldResults].([]any)
	if !ok || len(children) != 2 {
		t.Fatalf("results = %v, want 2 records", rec[model.FieldResults])
	}
	first, _ := children[0].(map[string]any)
	if first["id"] != "db" || first["info"] != "reachable" {
		t.Errorf("results[0] = %v, want db record", first)
	}
}

func TestCheckParallelOverride(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/check", map[string]any{"max_procs": 2, "timeout": 30})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	rec := decodeRecord(t, resp)
	if rec.Status() != model.StatusOK {
		t.Errorf("status = %q, want OK (record %v)", rec.Status(), rec)
	}
}

func TestCheckSingleTaskUnwrapped(t *testing.T) {
	tasks := []model.Task{{ID: "solo", Kind: checks.KindStatic, Args: map[string]any{"status": "WARNING", "info": "disk 85%"}}}
	srv := newTestServerWith(t, tasks, true)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/check", nil)
	defer resp.Body.Close()

	rec := decodeRecord(t, resp)
	if rec.Status() != model.StatusWarning {
		t.Errorf("status = %q, want WARNING", rec.Status())
	}
	if _, ok := rec[model.FieldResults]; ok {
		t.Error("single record should not be wrapped")
	}
	if rec["id"] != "solo" {
		t.Errorf("id = %v, want solo", rec["id"])
	}
}

func TestCheckGlobalTimeout(t *testing.T) {
	tasks := []model.Task{
		{ID: "fast", Kind: checks.KindStatic},
		{ID: "slow", Kind: checks.KindSleep, Args: map[string]any{"seconds": 5}},
	}
	srv := newTestServerWith(t, tasks, true)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/check", map[string]any{"max_procs": 2, "timeout": 1})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	rec := decodeRecord(t, resp)
	if rec.Status() != model.StatusCritical {
		t.Errorf("status = %q, want CRITICAL", rec.Status())
	}
	if rec.Info() != "Check killed due to global timeout of 1 seconds." {
		t.Errorf("info = %q", rec.Info())
	}
	children, _ := rec[model.FieldResults].([]any)
	if len(children) != 2 {
		t.Fatalf("got %d results, want 2", len(children))
	}
	slow, _ := children[1].(map[string]any)
	if slow["status"] != "CRITICAL" {
		t.Errorf("slow status = %v, want CRITICAL", slow["status"])
	}
}

func TestCheckInvalidOverride(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body map[string]any
		info string
	}{
		{"negative max_procs", map[string]any{"max_procs": -1}, "max_procs must be a zero or positive integer!"},
		{"zero timeout", map[string]any{"timeout": 0}, "timeout must be a positive integer!"},
		{"unknown child_init", map[string]any{"child_init": "nope"}, "child_init must be a code reference!"},
		{"string timeout", map[string]any{"timeout": "soon"}, "timeout must be a positive integer!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/check", tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			rec := decodeRecord(t, resp)
			if rec.Status() != model.StatusCritical {
				t.Errorf("status = %q, want CRITICAL", rec.Status())
			}
			if rec.Info() != tt.info {
				t.Errorf("info = %q, want %q", rec.Info(), tt.info)
			}
		})
	}

	// The checker keeps working after rejected overrides.
	resp := postJSON(t, ts.URL+"/v1/check", nil)
	defer resp.Body.Close()
	if rec := decodeRecord(t, resp); rec.Status() != model.StatusOK {
		t.Errorf("status after invalid overrides = %q, want OK", rec.Status())
	}
}

func TestCheckInvalidJSON(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/check", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCheckRecordsRun(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/check", nil)
	resp.Body.Close()
	runID := resp.Header.Get("X-Run-Id")

	got, err := http.Get(ts.URL + "/v1/runs/" + runID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer got.Body.Close()

	if got.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", got.StatusCode)
	}
	var run runResponse
	if err := json.NewDecoder(got.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.State != model.RunCompleted {
		t.Errorf("state = %q, want completed", run.State)
	}
	if len(run.Tasks) != 2 {
		t.Errorf("got %d task records, want 2", len(run.Tasks))
	}
}
