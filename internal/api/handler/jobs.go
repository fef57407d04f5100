package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/mediagrab/internal/domain"
	"github.com/iconidentify/mediagrab/internal/repository"
)

// JobsHandler exposes acquisition job history.
type JobsHandler struct {
	history repository.JobHistory
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(history repository.JobHistory) *JobsHandler {
	return &JobsHandler{history: history}
}

// JobListResponse contains recent jobs.
type JobListResponse struct {
	Jobs  []*repository.JobRecord `json:"jobs"`
	Limit int                     `json:"limit"`
}

// List handles GET /api/v1/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, kindInvalid, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	jobs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*repository.JobRecord{}
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs, Limit: limit})
}

// Get handles GET /api/v1/jobs/{jobID}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.history.Get(r.Context(), domain.JobID(chi.URLParam(r, "jobID")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
