package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobPosted    JobStatus = "posted"
	JobAssigned  JobStatus = "assigned"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
)

// jobTransitions encodes the job state machine.
// Posted -> Assigned -> Completed | Cancelled; Cancelled is also reachable from Posted.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPosted:   {JobAssigned, JobCancelled},
	JobAssigned: {JobCompleted, JobCancelled},
}

// Valid reports whether the status is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPosted, JobAssigned, JobCompleted, JobCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseJobStatus converts a wire-level status code to a JobStatus.
func ParseJobStatus(code uint8) (JobStatus, bool) {
	switch code {
	case 0:
		return JobPosted, true
	case 1:
		return JobAssigned, true
	case 2:
		return JobCompleted, true
	case 3:
		return JobCancelled, true
	}
	return "", false
}

// Job is the local mirror of an on-chain job posting.
// The ID is assigned by the ledger and immutable once set.
type Job struct {
	ID            uint64       `meddler:"job_id,pk" json:"job_id"`
	Employer      common.Hash  `meddler:"employer,hash" json:"employer"`
	Worker        *common.Hash `meddler:"worker,hash" json:"worker,omitempty"`
	Wages         uint64       `meddler:"wages" json:"wages"`
	DurationHours uint64       `meddler:"duration_hours" json:"duration_hours"`
	Category      string       `meddler:"category" json:"category"`
	Status        JobStatus    `meddler:"status" json:"status"`
	CreatedAt     int64        `meddler:"created_at" json:"created_at"`
	UpdatedAt     int64        `meddler:"updated_at" json:"updated_at"`
}
