package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nextlevelbuilder/rooksync/internal/store"
	"github.com/nextlevelbuilder/rooksync/pkg/protocol"
)

// PendingFunc reports how many items still need a given backfill.
type PendingFunc func(ctx context.Context) (int, error)

// API exposes the job REST surface and the /ws endpoint.
type API struct {
	svc *JobService
	hub *Hub

	// Pending count sources per backfill kind; a missing entry means
	// the start endpoint skips its pending check.
	Pending map[string]PendingFunc

	// Import defaults applied when a start request omits fields.
	DefaultSource   string
	DefaultMaxGames int
}

func NewAPI(svc *JobService, hub *Hub) *API {
	return &API{
		svc:             svc,
		hub:             hub,
		Pending:         make(map[string]PendingFunc),
		DefaultSource:   "lichess",
		DefaultMaxGames: 1000,
	}
}

// Routes builds the HTTP mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", a.hub.ServeWS)

	mux.HandleFunc("POST /api/import/start", a.handleImportStart)
	mux.HandleFunc("GET /api/import/status/{job_id}", a.handleImportStatus)

	mux.HandleFunc("POST /api/analysis/start", a.handleAnalysisStart)
	mux.HandleFunc("GET /api/analysis/status", a.kindStatus("analysis"))
	mux.HandleFunc("POST /api/analysis/stop/{job_id}", a.handleAnalysisStop)

	mux.HandleFunc("POST /api/sync/start", a.handleSyncStart)
	mux.HandleFunc("GET /api/sync/status", a.kindStatus("sync"))

	for kind, path := range map[string]string{
		"backfill_eco":     "backfill-eco",
		"backfill_phases":  "backfill-phases",
		"backfill_tactics": "backfill-tactics",
	} {
		mux.HandleFunc("POST /api/"+path+"/start", a.backfillStart(kind))
		mux.HandleFunc("GET /api/"+path+"/status", a.kindStatus(kind))
		mux.HandleFunc("GET /api/"+path+"/pending", a.backfillPending(kind))
	}

	mux.HandleFunc("DELETE /api/data/all", a.handleDeleteAllStart)
	mux.HandleFunc("GET /api/data/delete-status", a.kindStatus("delete_all_data"))

	mux.HandleFunc("GET /api/jobs", a.handleJobsList)
	mux.HandleFunc("DELETE /api/jobs/{job_id}", a.handleJobDelete)

	return mux
}

func (a *API) handleImportStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Source   string `json:"source"`
		MaxGames int    `json:"max_games"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if req.Source == "" {
		req.Source = a.DefaultSource
	}
	if req.MaxGames <= 0 {
		req.MaxGames = a.DefaultMaxGames
	}

	id, err := a.svc.Request(r.Context(), "import", req.Username, req.Source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (a *API) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.svc.Store().Get(r.Context(), r.PathValue("job_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) handleAnalysisStart(w http.ResponseWriter, r *http.Request) {
	id, err := a.svc.Request(r.Context(), "analysis", "", "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (a *API) handleAnalysisStop(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := a.svc.Store().Get(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job.Status != protocol.StatusPending && job.Status != protocol.StatusRunning {
		writeError(w, http.StatusBadRequest, "Cannot stop job with status: "+job.Status)
		return
	}

	if err := a.svc.Fail(r.Context(), jobID, job.JobType, "Cancelled by user"); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "job_id": jobID})
}

// handleDeleteAllStart starts the bulk data-wipe job. Settings survive;
// games, analysis results and job history go.
func (a *API) handleDeleteAllStart(w http.ResponseWriter, r *http.Request) {
	id, err := a.svc.Request(r.Context(), "delete_all_data", "", "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (a *API) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	if _, err := a.svc.Request(r.Context(), "sync", "", ""); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sync started"})
}

func (a *API) backfillStart(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pending, ok := a.Pending[kind]; ok {
			n, err := pending(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if n == 0 {
				writeError(w, http.StatusBadRequest, "Nothing needs "+kind)
				return
			}
		}

		id, err := a.svc.Request(r.Context(), kind, "", "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
	}
}

func (a *API) backfillPending(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 0
		if pending, ok := a.Pending[kind]; ok {
			var err error
			n, err = pending(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"pending_count": n})
	}
}

// kindStatus reports the running job of a kind, else the most recent
// one, else {"status": "no_jobs"}. This is the poll half of the
// poll-plus-push reconciliation the client performs.
func (a *API) kindStatus(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		running, err := a.svc.Store().List(r.Context(), store.ListFilter{
			JobType: kind, Status: protocol.StatusRunning, Limit: 1,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(running) > 0 {
			writeJSON(w, http.StatusOK, running[0])
			return
		}

		recent, err := a.svc.Store().List(r.Context(), store.ListFilter{JobType: kind, Limit: 1})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(recent) == 0 {
			writeJSON(w, http.StatusOK, map[string]string{"status": "no_jobs"})
			return
		}
		writeJSON(w, http.StatusOK, recent[0])
	}
}

func (a *API) handleJobsList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	jobs, err := a.svc.Store().List(r.Context(), store.ListFilter{
		JobType: r.URL.Query().Get("type"),
		Status:  r.URL.Query().Get("status"),
		Limit:   limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := a.svc.Store().Get(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job.Status == protocol.StatusRunning {
		writeError(w, http.StatusBadRequest, "Cannot delete running jobs. Stop the job first.")
		return
	}

	if err := a.svc.Store().Delete(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "job_id": jobID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
