package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Operation tags carried by ledger transactions. The decoder dispatches purely
// on these fixed-width values.
const (
	OpJobCreated       uint32 = 1
	OpWorkerAssigned   uint32 = 2
	OpJobStatusUpdated uint32 = 3
	OpJobCancelled     uint32 = 4
	OpEscrowCreated    uint32 = 5
	OpEscrowFunded     uint32 = 6
	OpEscrowLocked     uint32 = 7
	OpEscrowCompleted  uint32 = 8
	OpEscrowDisputed   uint32 = 9
	OpEscrowResolved   uint32 = 10
	OpRatingSubmitted  uint32 = 11
)

// EventKind names a decoded ledger event.
type EventKind string

const (
	KindJobCreated       EventKind = "job_created"
	KindWorkerAssigned   EventKind = "worker_assigned"
	KindJobStatusUpdated EventKind = "job_status_updated"
	KindJobCancelled     EventKind = "job_cancelled"
	KindEscrowCreated    EventKind = "escrow_created"
	KindEscrowFunded     EventKind = "escrow_funded"
	KindEscrowLocked     EventKind = "escrow_locked"
	KindEscrowCompleted  EventKind = "escrow_completed"
	KindEscrowDisputed   EventKind = "escrow_disputed"
	KindEscrowResolved   EventKind = "escrow_resolved"
	KindRatingSubmitted  EventKind = "rating_submitted"

	// KindEscrowRefunded is produced by the synthetic deadline-check pass,
	// not by a ledger transaction.
	KindEscrowRefunded EventKind = "escrow_refunded"
)

// DecodedEvent is a typed ledger transaction. Which fields are meaningful
// depends on Kind:
//
//	JobCreated:       JobID, Account (employer), Amount (wages), DurationHours, Category
//	WorkerAssigned:   JobID, Account (worker)
//	JobStatusUpdated: JobID, Status
//	JobCancelled:     JobID, Account (canceller)
//	EscrowCreated:    EscrowID, JobID, Amount, Account (employer), CounterAccount (worker), Deadline
//	EscrowFunded:     EscrowID, Amount, Account (funder)
//	EscrowLocked:     EscrowID
//	EscrowCompleted:  EscrowID, Account (confirmer)
//	EscrowDisputed:   EscrowID, Account (raiser), Reason
//	EscrowResolved:   EscrowID, Winner
//	RatingSubmitted:  JobID, Account (rater), CounterAccount (ratee hash), Rating
type DecodedEvent struct {
	Kind      EventKind
	TxHash    common.Hash
	Sequence  uint64
	Timestamp int64

	JobID          uint64
	EscrowID       uint64
	Amount         uint64
	DurationHours  uint64
	Category       string
	Account        common.Hash
	CounterAccount common.Hash
	Status         JobStatus
	Winner         ResolvedParty
	Reason         string
	Rating         uint8
	Deadline       int64
}

// ProcessedTransaction is the idempotency record inserted atomically with the
// state mutation it authorizes.
type ProcessedTransaction struct {
	TxHash      common.Hash `meddler:"tx_hash,hash"`
	Kind        EventKind   `meddler:"kind"`
	Outcome     string      `meddler:"outcome"`
	ProcessedAt int64       `meddler:"processed_at"`
}

// Cursor is the durable per-address poll position.
type Cursor struct {
	Address      string `meddler:"address"`
	LastSequence uint64 `meddler:"last_sequence"`
	UpdatedAt    int64  `meddler:"updated_at"`
}

// DomainEvent is the notification emitted after a successful state mutation.
// Delivery is best effort within a bounded buffer; the state store is the
// source of truth, and consumers deduplicate by ID or TxHash.
type DomainEvent struct {
	ID        string      `json:"id"`
	Kind      EventKind   `json:"kind"`
	JobID     uint64      `json:"job_id,omitempty"`
	EscrowID  uint64      `json:"escrow_id,omitempty"`
	Account   common.Hash `json:"account,omitempty"`
	TxHash    common.Hash `json:"tx_hash,omitempty"`
	Details   string      `json:"details,omitempty"`
	EmittedAt int64       `json:"emitted_at"`
}
