package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_StartImportPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/import/start" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "J1"})
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL).StartImport(context.Background(), "magnus", "lichess", 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "J1" {
		t.Errorf("expected J1, got %q", id)
	}
	if got["username"] != "magnus" || got["max_games"] != float64(500) {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestClient_ImportStatusFallsBackToNoJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("type") != "import" {
			t.Errorf("expected type=import, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]JobStatus{})
	}))
	defer srv.Close()

	status, err := NewClient(srv.URL).ImportStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Status != "no_jobs" {
		t.Errorf("expected no_jobs, got %q", status.Status)
	}
}

func TestClient_ErrorDetailSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "username is required"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).StartImport(context.Background(), "", "", 0)
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Detail != "username is required" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if err.Error() != "username is required" {
		t.Errorf("error string should carry the detail, got %q", err.Error())
	}
}

func TestClient_BackfillPathMapping(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"job_id": "J1", "pending_count": 7})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	if _, err := c.StartBackfill(ctx, "backfill_eco"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n, err := c.BackfillPending(ctx, "backfill_phases"); err != nil || n != 7 {
		t.Fatalf("pending: n=%d err=%v", n, err)
	}
	if _, err := c.BackfillStatus(ctx, "backfill_tactics"); err != nil {
		t.Fatalf("status: %v", err)
	}

	want := []string{"/api/backfill-eco/start", "/api/backfill-phases/pending", "/api/backfill-tactics/status"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("expected %s, got %s", want[i], paths[i])
		}
	}

	if _, err := c.StartBackfill(ctx, "backfill_unknown"); err == nil {
		t.Error("expected an error for an unknown backfill kind")
	}
}

func TestClient_DeleteAllUsesDataEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/api/data/all":
			json.NewEncoder(w).Encode(map[string]string{"job_id": "J4"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/data/delete-status":
			json.NewEncoder(w).Encode(JobStatus{JobID: "J4", Status: "running", ProgressCurrent: 2, ProgressTotal: 4})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	id, err := c.StartDeleteAll(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id != "J4" {
		t.Errorf("expected J4, got %q", id)
	}

	b := c.DeleteAllBinding()
	snap, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if snap.JobID != "J4" || snap.Status != "running" || snap.Current != 2 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestClient_SyncBindingResolvesJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sync/start":
			json.NewEncoder(w).Encode(map[string]string{"status": "sync started"})
		case "/api/sync/status":
			json.NewEncoder(w).Encode(JobStatus{JobID: "J7", Status: "running"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	b := NewClient(srv.URL).SyncBinding()
	id, err := b.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id != "J7" {
		t.Errorf("expected the polled job id, got %q", id)
	}
}

func TestClient_ListJobsBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "analysis" || q.Get("status") != "failed" || q.Get("limit") != "5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]JobStatus{{JobID: "J1"}})
	}))
	defer srv.Close()

	jobs, err := NewClient(srv.URL).ListJobs(context.Background(), "analysis", "failed", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != "J1" {
		t.Errorf("unexpected result: %+v", jobs)
	}
}
