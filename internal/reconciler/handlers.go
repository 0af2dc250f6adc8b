package reconciler

import (
	"errors"
	"fmt"

	"github.com/russross/meddler"
	"github.com/workmesh/marketmirror/internal/cache"
	"github.com/workmesh/marketmirror/internal/store"
	"github.com/workmesh/marketmirror/internal/types"
)

// loadJob wraps store.GetJob, translating a missing row into an orphan.
func (r *Reconciler) loadJob(tx meddler.DB, event *types.DecodedEvent) (*types.Job, error) {
	job, err := r.store.GetJob(tx, event.JobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &types.OrphanEventError{Kind: event.Kind, JobID: event.JobID}
	}
	return job, err
}

// loadEscrow wraps store.GetEscrow, translating a missing row into an orphan.
func (r *Reconciler) loadEscrow(tx meddler.DB, event *types.DecodedEvent) (*types.Escrow, error) {
	escrow, err := r.store.GetEscrow(tx, event.EscrowID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &types.OrphanEventError{Kind: event.Kind, EscrowID: event.EscrowID}
	}
	return escrow, err
}

func (r *Reconciler) applyJobCreated(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	_, err := r.store.GetJob(tx, event.JobID)
	if err == nil {
		return applyEffect{}, &types.ValidationError{Reason: fmt.Sprintf("job %d already exists", event.JobID)}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return applyEffect{}, err
	}

	job := &types.Job{
		ID:            event.JobID,
		Employer:      event.Account,
		Wages:         event.Amount,
		DurationHours: event.DurationHours,
		Category:      event.Category,
		Status:        types.JobPosted,
		CreatedAt:     event.Timestamp,
		UpdatedAt:     event.Timestamp,
	}
	if err := r.store.InsertJob(tx, job); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{invalidate: []string{cache.JobKey(event.JobID)}}, nil
}

func (r *Reconciler) applyWorkerAssigned(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	job, err := r.loadJob(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	if !job.Status.CanTransition(types.JobAssigned) {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "job", ID: job.ID, From: string(job.Status), To: string(types.JobAssigned),
		}
	}

	worker := event.Account
	job.Worker = &worker
	job.Status = types.JobAssigned
	job.UpdatedAt = event.Timestamp
	if err := r.store.UpdateJob(tx, job); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{invalidate: []string{cache.JobKey(job.ID)}}, nil
}

func (r *Reconciler) applyJobStatusUpdated(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	job, err := r.loadJob(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	// assignment carries the worker account and only WorkerAssigned has it
	if event.Status == types.JobAssigned {
		return applyEffect{}, &types.ValidationError{
			Reason: fmt.Sprintf("job %d cannot move to %s through a bare status update", job.ID, types.JobAssigned),
		}
	}
	if job.Status == event.Status {
		return applyEffect{}, &types.ValidationError{
			Reason: fmt.Sprintf("job %d already has status %s", job.ID, job.Status),
		}
	}
	if !job.Status.CanTransition(event.Status) {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "job", ID: job.ID, From: string(job.Status), To: string(event.Status),
		}
	}

	job.Status = event.Status
	job.UpdatedAt = event.Timestamp
	if err := r.store.UpdateJob(tx, job); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{
		invalidate: []string{cache.JobKey(job.ID)},
		details:    fmt.Sprintf("status %s", event.Status),
	}, nil
}

func (r *Reconciler) applyJobCancelled(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	job, err := r.loadJob(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	if !job.Status.CanTransition(types.JobCancelled) {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "job", ID: job.ID, From: string(job.Status), To: string(types.JobCancelled),
		}
	}

	job.Status = types.JobCancelled
	job.UpdatedAt = event.Timestamp
	if err := r.store.UpdateJob(tx, job); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{invalidate: []string{cache.JobKey(job.ID)}}, nil
}

func (r *Reconciler) applyEscrowCreated(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	// the escrow's job must exist first
	if _, err := r.loadJob(tx, event); err != nil {
		return applyEffect{}, err
	}

	_, err := r.store.GetEscrowByJob(tx, event.JobID)
	if err == nil {
		return applyEffect{}, &types.ValidationError{
			Reason: fmt.Sprintf("job %d already has an escrow", event.JobID),
		}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return applyEffect{}, err
	}

	escrow := &types.Escrow{
		ID:        event.EscrowID,
		JobID:     event.JobID,
		Amount:    event.Amount,
		Employer:  event.Account,
		Worker:    event.CounterAccount,
		Status:    types.EscrowCreated,
		Deadline:  event.Deadline,
		CreatedAt: event.Timestamp,
		UpdatedAt: event.Timestamp,
	}
	if err := r.store.InsertEscrow(tx, escrow); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{invalidate: []string{cache.EscrowByJobKey(event.JobID)}}, nil
}

func (r *Reconciler) applyEscrowFunded(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	escrow, err := r.loadEscrow(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	if escrow.Status.Terminal() {
		return applyEffect{}, &types.PermanentError{
			Reason: fmt.Sprintf("escrow %d is %s, funds are settled", escrow.ID, escrow.Status),
		}
	}
	if escrow.Status != types.EscrowCreated && escrow.Status != types.EscrowFunded {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "escrow", ID: escrow.ID, From: string(escrow.Status), To: string(types.EscrowFunded),
		}
	}

	escrow.FundedAmount = event.Amount
	escrow.UpdatedAt = event.Timestamp

	// an exact-amount funding locks immediately; anything else stays funded
	// and surfaces the mismatch
	var mismatch error
	if event.Amount == escrow.Amount {
		escrow.Status = types.EscrowLocked
	} else {
		escrow.Status = types.EscrowFunded
		mismatch = &types.ValidationError{
			Reason: fmt.Sprintf("escrow %d funded with %d, expected %d", escrow.ID, event.Amount, escrow.Amount),
		}
	}

	if err := r.store.UpdateEscrow(tx, escrow); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{invalidate: []string{cache.EscrowByJobKey(escrow.JobID)}}, mismatch
}

func (r *Reconciler) applyEscrowLocked(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	escrow, err := r.loadEscrow(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	if escrow.Status.Terminal() {
		return applyEffect{}, &types.PermanentError{
			Reason: fmt.Sprintf("escrow %d is %s, funds are settled", escrow.ID, escrow.Status),
		}
	}
	if !escrow.Status.CanTransition(types.EscrowLocked) {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "escrow", ID: escrow.ID, From: string(escrow.Status), To: string(types.EscrowLocked),
		}
	}
	if escrow.FundedAmount != escrow.Amount {
		return applyEffect{}, &types.ValidationError{
			Reason: fmt.Sprintf("escrow %d cannot lock: funded %d of %d", escrow.ID, escrow.FundedAmount, escrow.Amount),
		}
	}

	escrow.Status = types.EscrowLocked
	escrow.UpdatedAt = event.Timestamp
	if err := r.store.UpdateEscrow(tx, escrow); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{invalidate: []string{cache.EscrowByJobKey(escrow.JobID)}}, nil
}

func (r *Reconciler) applyEscrowCompleted(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	escrow, err := r.loadEscrow(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	if escrow.Status.Terminal() {
		// a second release attempt must never move funds again
		return applyEffect{}, &types.PermanentError{
			Reason: fmt.Sprintf("escrow %d is %s, funds are settled", escrow.ID, escrow.Status),
		}
	}
	if !escrow.Status.CanTransition(types.EscrowCompleted) {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "escrow", ID: escrow.ID, From: string(escrow.Status), To: string(types.EscrowCompleted),
		}
	}

	released := r.payout(escrow.FundedAmount)
	escrow.Status = types.EscrowCompleted
	escrow.ReleasedAmount = released
	escrow.UpdatedAt = event.Timestamp
	if err := r.store.UpdateEscrow(tx, escrow); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{
		invalidate: []string{cache.EscrowByJobKey(escrow.JobID)},
		details:    fmt.Sprintf("released %d to worker", released),
	}, nil
}

func (r *Reconciler) applyEscrowDisputed(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	escrow, err := r.loadEscrow(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	if escrow.Status.Terminal() {
		return applyEffect{}, &types.PermanentError{
			Reason: fmt.Sprintf("escrow %d is %s, funds are settled", escrow.ID, escrow.Status),
		}
	}
	if !escrow.Status.CanTransition(types.EscrowDisputed) {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "escrow", ID: escrow.ID, From: string(escrow.Status), To: string(types.EscrowDisputed),
		}
	}

	escrow.Status = types.EscrowDisputed
	escrow.DisputeReason = event.Reason
	escrow.UpdatedAt = event.Timestamp
	if err := r.store.UpdateEscrow(tx, escrow); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{
		invalidate: []string{cache.EscrowByJobKey(escrow.JobID)},
		details:    event.Reason,
	}, nil
}

func (r *Reconciler) applyEscrowResolved(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	escrow, err := r.loadEscrow(tx, event)
	if err != nil {
		return applyEffect{}, err
	}

	if escrow.Status.Terminal() {
		return applyEffect{}, &types.PermanentError{
			Reason: fmt.Sprintf("escrow %d is %s, funds are settled", escrow.ID, escrow.Status),
		}
	}
	if !escrow.Status.CanTransition(types.EscrowResolved) {
		return applyEffect{}, &types.InvalidTransitionError{
			Entity: "escrow", ID: escrow.ID, From: string(escrow.Status), To: string(types.EscrowResolved),
		}
	}

	escrow.Status = types.EscrowResolved
	escrow.ResolvedTo = event.Winner
	if event.Winner == types.ResolvedToWorker {
		escrow.ReleasedAmount = r.payout(escrow.FundedAmount)
	} else {
		// funds go back to the employer; nothing is released to the worker
		escrow.ReleasedAmount = 0
	}
	escrow.UpdatedAt = event.Timestamp
	if err := r.store.UpdateEscrow(tx, escrow); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{
		invalidate: []string{cache.EscrowByJobKey(escrow.JobID)},
		details:    fmt.Sprintf("resolved to %s", event.Winner),
	}, nil
}

func (r *Reconciler) applyRatingSubmitted(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	// ratings reference a job, which must exist locally first
	if _, err := r.loadJob(tx, event); err != nil {
		return applyEffect{}, err
	}

	if err := r.reputation.Apply(tx, event); err != nil {
		return applyEffect{}, err
	}

	return applyEffect{
		invalidate: []string{cache.ReputationKey(types.HashAccount(event.CounterAccount))},
	}, nil
}
