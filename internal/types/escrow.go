package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// EscrowStatus represents the custody state of an escrow.
type EscrowStatus string

const (
	EscrowCreated   EscrowStatus = "created"
	EscrowFunded    EscrowStatus = "funded"
	EscrowLocked    EscrowStatus = "locked"
	EscrowCompleted EscrowStatus = "completed"
	EscrowDisputed  EscrowStatus = "disputed"
	EscrowResolved  EscrowStatus = "resolved"
	EscrowRefunded  EscrowStatus = "refunded"
)

// ResolvedParty identifies who a disputed escrow was resolved in favor of.
type ResolvedParty string

const (
	ResolvedToEmployer ResolvedParty = "employer"
	ResolvedToWorker   ResolvedParty = "worker"
)

// escrowTransitions encodes the escrow state machine.
// Created -> Funded -> Locked -> {Completed | Disputed};
// Disputed -> Resolved; Funded|Locked -> Refunded on deadline expiry.
// A Funded escrow may also go straight to Locked when the funding event
// carries the exact wage amount.
var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowCreated:  {EscrowFunded, EscrowLocked},
	EscrowFunded:   {EscrowLocked, EscrowRefunded},
	EscrowLocked:   {EscrowCompleted, EscrowDisputed, EscrowRefunded},
	EscrowDisputed: {EscrowResolved},
}

// Valid reports whether the status is a known escrow status.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowCreated, EscrowFunded, EscrowLocked, EscrowCompleted,
		EscrowDisputed, EscrowResolved, EscrowRefunded:
		return true
	}
	return false
}

// Terminal reports whether funds custody is settled. Terminal escrows must
// reject any further release attempt.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowCompleted || s == EscrowResolved || s == EscrowRefunded
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s EscrowStatus) CanTransition(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Escrow is the local mirror of an on-chain escrow. Exactly one escrow exists
// per job.
type Escrow struct {
	ID             uint64        `meddler:"escrow_id,pk" json:"escrow_id"`
	JobID          uint64        `meddler:"job_id" json:"job_id"`
	Amount         uint64        `meddler:"amount" json:"amount"`
	FundedAmount   uint64        `meddler:"funded_amount" json:"funded_amount"`
	ReleasedAmount uint64        `meddler:"released_amount" json:"released_amount"`
	Employer       common.Hash   `meddler:"employer,hash" json:"employer"`
	Worker         common.Hash   `meddler:"worker,hash" json:"worker"`
	Status         EscrowStatus  `meddler:"status" json:"status"`
	Deadline       int64         `meddler:"deadline" json:"deadline"`
	DisputeReason  string        `meddler:"dispute_reason" json:"dispute_reason,omitempty"`
	ResolvedTo     ResolvedParty `meddler:"resolved_to" json:"resolved_to,omitempty"`
	CreatedAt      int64         `meddler:"created_at" json:"created_at"`
	UpdatedAt      int64         `meddler:"updated_at" json:"updated_at"`
}
