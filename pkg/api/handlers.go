package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/workmesh/marketmirror/internal/cache"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/internal/store"
	"github.com/workmesh/marketmirror/internal/types"
)

// Handler serves read-only queries against the state store, fronted by the
// cache. It never writes; all mutation flows through the reconciler.
type Handler struct {
	store *store.Store
	cache *cache.Cache
	log   *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s *store.Store, c *cache.Cache, log *logger.Logger) *Handler {
	return &Handler{
		store: s,
		cache: c,
		log:   log,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetJob returns a single job by id.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	key := cache.JobKey(jobID)
	if cached, ok := h.cache.Get(key); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	job, err := h.store.GetJob(h.store.DB(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", jobID))
		return
	}
	if err != nil {
		h.log.Errorf("failed to load job %d: %v", jobID, err)
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	h.cache.Set(key, job)
	respondJSON(w, http.StatusOK, job)
}

// ListJobs returns a filtered page of jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := cache.JobListKey(string(filter.Status), filter.Category, filter.Cursor, filter.Limit)
	if cached, ok := h.cache.Get(key); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	jobs, err := h.store.ListJobs(h.store.DB(), filter)
	if err != nil {
		h.log.Errorf("failed to list jobs: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	response := JobListResponse{Jobs: jobs}
	if len(jobs) > 0 {
		response.NextCursor = jobs[len(jobs)-1].ID
	}

	h.cache.Set(key, response)
	respondJSON(w, http.StatusOK, response)
}

// GetJobEscrow returns the escrow attached to a job.
func (h *Handler) GetJobEscrow(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	key := cache.EscrowByJobKey(jobID)
	if cached, ok := h.cache.Get(key); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	escrow, err := h.store.GetEscrowByJob(h.store.DB(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("job %d has no escrow", jobID))
		return
	}
	if err != nil {
		h.log.Errorf("failed to load escrow for job %d: %v", jobID, err)
		respondError(w, http.StatusInternalServerError, "failed to load escrow")
		return
	}

	h.cache.Set(key, escrow)
	respondJSON(w, http.StatusOK, escrow)
}

// GetReputation returns the reputation aggregate for an account. The path
// parameter is the raw account identifier; storage is keyed by its hash.
func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		respondError(w, http.StatusBadRequest, "account is required")
		return
	}

	accountHash := types.HashAccount(common.HexToHash(account))
	key := cache.ReputationKey(accountHash)
	if cached, ok := h.cache.Get(key); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	rep, err := h.store.GetReputation(h.store.DB(), accountHash)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no ratings for account")
		return
	}
	if err != nil {
		h.log.Errorf("failed to load reputation for %s: %v", account, err)
		respondError(w, http.StatusInternalServerError, "failed to load reputation")
		return
	}

	response := ReputationResponse{
		AccountHash:   rep.AccountHash.Hex(),
		Score:         float64(rep.WeightedScore) / types.ScoreScale,
		RatingCount:   rep.RatingCount,
		LastUpdatedAt: rep.LastUpdatedAt,
	}

	h.cache.Set(key, response)
	respondJSON(w, http.StatusOK, response)
}

// parseJobFilter builds a store filter from query parameters.
func parseJobFilter(r *http.Request) (store.JobFilter, error) {
	filter := store.JobFilter{
		Category: r.URL.Query().Get("category"),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		jobStatus := types.JobStatus(status)
		if !jobStatus.Valid() {
			return filter, fmt.Errorf("unknown job status %q", status)
		}
		filter.Status = jobStatus
	}

	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid cursor %q", cursor)
		}
		filter.Cursor = parsed
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed <= 0 || parsed > 500 {
			return filter, fmt.Errorf("invalid limit %q", limit)
		}
		filter.Limit = parsed
	}

	return filter, nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode JSON first to catch any errors before writing status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
