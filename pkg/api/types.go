package api

import "github.com/workmesh/marketmirror/internal/types"

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// JobListResponse wraps a page of jobs with the cursor for the next page.
type JobListResponse struct {
	Jobs       []*types.Job `json:"jobs"`
	NextCursor uint64       `json:"next_cursor,omitempty"`
}

// ReputationResponse is the public view of a reputation aggregate. Score is
// the weighted score scaled back to the 1..5 rating range.
type ReputationResponse struct {
	AccountHash   string  `json:"account_hash"`
	Score         float64 `json:"score"`
	RatingCount   uint64  `json:"rating_count"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status string `json:"status"`
}
