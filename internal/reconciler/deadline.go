package reconciler

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/workmesh/marketmirror/internal/cache"
	"github.com/workmesh/marketmirror/internal/types"
)

// ApplyDeadlineExpiry refunds every open escrow whose deadline has passed.
// The transition to refunded is terminal, so running the pass twice over the
// same escrow is a no-op: the second listing simply no longer returns it.
// Returns the number of escrows refunded.
func (r *Reconciler) ApplyDeadlineExpiry(ctx context.Context, now int64) (int, error) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	expired, err := r.store.ListOpenEscrowsPastDeadline(r.store.DB(), now)
	if err != nil {
		return 0, err
	}

	refunded := 0
	for _, escrow := range expired {
		if err := ctx.Err(); err != nil {
			return refunded, err
		}

		if !escrow.Status.CanTransition(types.EscrowRefunded) {
			// created escrows never held funds; nothing to refund
			continue
		}

		escrow := escrow
		err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
			escrow.Status = types.EscrowRefunded
			escrow.ReleasedAmount = 0
			escrow.UpdatedAt = now
			return r.store.UpdateEscrow(tx, escrow)
		})
		if err != nil {
			return refunded, fmt.Errorf("failed to refund escrow %d: %w", escrow.ID, err)
		}

		refunded++
		RefundsInc()
		r.cache.Invalidate(cache.EscrowByJobKey(escrow.JobID))

		select {
		case r.events <- types.DomainEvent{
			ID:        uuid.NewString(),
			Kind:      types.KindEscrowRefunded,
			JobID:     escrow.JobID,
			EscrowID:  escrow.ID,
			Account:   escrow.Employer,
			Details:   fmt.Sprintf("deadline %d passed, %d returned to employer", escrow.Deadline, escrow.FundedAmount),
			EmittedAt: r.nowFn(),
		}:
		default:
			r.log.Warnf("domain event buffer full, dropping refund for escrow %d", escrow.ID)
		}

		r.log.Infof("refunded escrow %d for job %d: deadline %d passed", escrow.ID, escrow.JobID, escrow.Deadline)
	}

	return refunded, nil
}
