package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/russross/meddler"
	"github.com/workmesh/marketmirror/internal/cache"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/internal/reputation"
	"github.com/workmesh/marketmirror/internal/store"
	"github.com/workmesh/marketmirror/internal/types"
)

// Outcome classifies what Apply did with an event.
type Outcome string

const (
	// OutcomeApplied means the event mutated state and was recorded.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyApplied means the transaction hash was seen before; the
	// re-delivery was a no-op.
	OutcomeAlreadyApplied Outcome = "already_applied"
	// OutcomeDeferred means the event arrived ahead of a prerequisite and
	// will be retried on a later poll cycle.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeRejected means the event violated a business rule and was
	// recorded so it is never retried.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the event can never be applied and was recorded as
	// a permanent failure.
	OutcomeFailed Outcome = "failed"
)

// Result reports the outcome of applying one event. Err is set for rejected,
// deferred and failed outcomes; the event error taxonomy in the types package
// tells them apart.
type Result struct {
	Outcome Outcome
	Err     error
}

// Config tunes the reconciler.
type Config struct {
	// MaxDeferralCycles bounds how many times a deferred event is retried
	// before being escalated to a permanent failure.
	MaxDeferralCycles int

	// PlatformFeeBps is the fee in basis points withheld from escrow payouts.
	PlatformFeeBps uint64

	// EventBuffer sizes the domain event channel.
	EventBuffer int
}

// Reconciler applies decoded ledger events to the state store. Every apply is
// one transaction covering the dedup check, the state mutation, and the
// idempotency record, so a crash can never leave a half-applied event.
type Reconciler struct {
	store      *store.Store
	cache      *cache.Cache
	reputation *reputation.Aggregator
	cfg        Config
	log        *logger.Logger

	events chan types.DomainEvent
	nowFn  func() int64

	// applyMu serializes applies so cache invalidation is ordered with
	// respect to commits.
	applyMu sync.Mutex

	// deferrals counts poll cycles a transaction has been deferred.
	deferralMu sync.Mutex
	deferrals  map[common.Hash]int
}

// New creates a Reconciler. All dependencies are required.
func New(s *store.Store, c *cache.Cache, rep *reputation.Aggregator, cfg Config, log *logger.Logger) (*Reconciler, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if rep == nil {
		return nil, fmt.Errorf("reputation aggregator is required")
	}
	if cfg.MaxDeferralCycles <= 0 {
		cfg.MaxDeferralCycles = 10
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}

	return &Reconciler{
		store:      s,
		cache:      c,
		reputation: rep,
		cfg:        cfg,
		log:        log.WithComponent("reconciler"),
		events:     make(chan types.DomainEvent, cfg.EventBuffer),
		nowFn:      func() int64 { return time.Now().Unix() },
		deferrals:  make(map[common.Hash]int),
	}, nil
}

// Events returns the domain event stream. Delivery is best effort; a full
// buffer drops the event with a warning rather than stalling reconciliation.
func (r *Reconciler) Events() <-chan types.DomainEvent {
	return r.events
}

// applyEffect is what a kind handler produced inside the transaction.
type applyEffect struct {
	invalidate []string
	details    string
}

// Apply reconciles one decoded event into the state store.
//
// The returned error is non-nil only for transient faults (I/O, database);
// those abort without a processed record so the poller retries the whole
// batch. Domain-level failures are reported through the Result and, except
// for deferrals, recorded in the same transaction as any committed state.
func (r *Reconciler) Apply(ctx context.Context, event *types.DecodedEvent) (Result, error) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	var (
		effect    applyEffect
		domainErr error
		outcome   Outcome
	)

	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		processed, err := r.store.IsProcessed(tx, event.TxHash)
		if err != nil {
			return err
		}
		if processed {
			outcome = OutcomeAlreadyApplied
			return nil
		}

		effect, domainErr = r.dispatch(tx, event)

		switch {
		case domainErr == nil:
			outcome = OutcomeApplied
		case errors.Is(domainErr, types.ErrAlreadyApplied), types.IsValidation(domainErr):
			// business-rule rejection: commit whatever the handler mutated
			// plus the processed record, so the event is never retried
			outcome = OutcomeRejected
		case types.IsDeferrable(domainErr):
			// roll back; the event may apply once its prerequisite lands
			outcome = OutcomeDeferred
			return domainErr
		case types.IsPermanent(domainErr):
			outcome = OutcomeFailed
		default:
			// transient fault, roll back without a processed record
			return domainErr
		}

		return r.store.MarkProcessed(tx, &types.ProcessedTransaction{
			TxHash:      event.TxHash,
			Kind:        event.Kind,
			Outcome:     string(outcome),
			ProcessedAt: r.nowFn(),
		})
	})

	if err != nil {
		if outcome == OutcomeDeferred {
			return r.deferOrEscalate(ctx, event, err)
		}
		return Result{}, err
	}

	r.clearDeferral(event.TxHash)
	EventsInc(string(event.Kind), string(outcome))

	// rejected events can still have committed a partial mutation, so any
	// eviction keys the handler produced are honored regardless of outcome
	if len(effect.invalidate) > 0 {
		r.cache.Invalidate(effect.invalidate...)
		r.cache.InvalidateJobLists()
	}

	if outcome == OutcomeApplied {
		r.emit(event, effect.details)
	}

	switch outcome {
	case OutcomeRejected:
		r.log.Warnf("rejected %s (tx %s): %v", event.Kind, event.TxHash.Hex(), domainErr)
		return Result{Outcome: outcome, Err: domainErr}, nil
	case OutcomeFailed:
		r.log.Errorf("permanently failed %s (tx %s): %v", event.Kind, event.TxHash.Hex(), domainErr)
		return Result{Outcome: outcome, Err: domainErr}, nil
	default:
		return Result{Outcome: outcome}, nil
	}
}

// deferOrEscalate counts a deferral and, once the budget is exhausted,
// converts it into a recorded permanent failure.
func (r *Reconciler) deferOrEscalate(ctx context.Context, event *types.DecodedEvent, cause error) (Result, error) {
	r.deferralMu.Lock()
	r.deferrals[event.TxHash]++
	attempts := r.deferrals[event.TxHash]
	pending := len(r.deferrals)
	r.deferralMu.Unlock()

	if attempts < r.cfg.MaxDeferralCycles {
		DeferredSet(pending)
		EventsInc(string(event.Kind), string(OutcomeDeferred))
		r.log.Infof("deferred %s (tx %s, attempt %d/%d): %v",
			event.Kind, event.TxHash.Hex(), attempts, r.cfg.MaxDeferralCycles, cause)
		return Result{Outcome: OutcomeDeferred, Err: cause}, nil
	}

	permanent := &types.PermanentError{
		Reason: fmt.Sprintf("deferred %d times without resolving", attempts),
		Err:    cause,
	}

	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		return r.store.MarkProcessed(tx, &types.ProcessedTransaction{
			TxHash:      event.TxHash,
			Kind:        event.Kind,
			Outcome:     string(OutcomeFailed),
			ProcessedAt: r.nowFn(),
		})
	})
	if err != nil {
		return Result{}, err
	}

	r.clearDeferral(event.TxHash)
	EventsInc(string(event.Kind), string(OutcomeFailed))
	r.log.Errorf("escalated %s (tx %s) after %d deferrals: %v",
		event.Kind, event.TxHash.Hex(), attempts, cause)

	return Result{Outcome: OutcomeFailed, Err: permanent}, nil
}

func (r *Reconciler) clearDeferral(txHash common.Hash) {
	r.deferralMu.Lock()
	delete(r.deferrals, txHash)
	pending := len(r.deferrals)
	r.deferralMu.Unlock()
	DeferredSet(pending)
}

func (r *Reconciler) emit(event *types.DecodedEvent, details string) {
	domainEvent := types.DomainEvent{
		ID:        uuid.NewString(),
		Kind:      event.Kind,
		JobID:     event.JobID,
		EscrowID:  event.EscrowID,
		Account:   event.Account,
		TxHash:    event.TxHash,
		Details:   details,
		EmittedAt: r.nowFn(),
	}

	select {
	case r.events <- domainEvent:
	default:
		r.log.Warnf("domain event buffer full, dropping %s for tx %s", event.Kind, event.TxHash.Hex())
	}
}

// dispatch routes an event to its kind handler.
func (r *Reconciler) dispatch(tx meddler.DB, event *types.DecodedEvent) (applyEffect, error) {
	switch event.Kind {
	case types.KindJobCreated:
		return r.applyJobCreated(tx, event)
	case types.KindWorkerAssigned:
		return r.applyWorkerAssigned(tx, event)
	case types.KindJobStatusUpdated:
		return r.applyJobStatusUpdated(tx, event)
	case types.KindJobCancelled:
		return r.applyJobCancelled(tx, event)
	case types.KindEscrowCreated:
		return r.applyEscrowCreated(tx, event)
	case types.KindEscrowFunded:
		return r.applyEscrowFunded(tx, event)
	case types.KindEscrowLocked:
		return r.applyEscrowLocked(tx, event)
	case types.KindEscrowCompleted:
		return r.applyEscrowCompleted(tx, event)
	case types.KindEscrowDisputed:
		return r.applyEscrowDisputed(tx, event)
	case types.KindEscrowResolved:
		return r.applyEscrowResolved(tx, event)
	case types.KindRatingSubmitted:
		return r.applyRatingSubmitted(tx, event)
	default:
		return applyEffect{}, &types.ValidationError{Reason: fmt.Sprintf("unhandled event kind %s", event.Kind)}
	}
}

// payout returns the worker payout after the platform fee.
func (r *Reconciler) payout(amount uint64) uint64 {
	return amount * (10000 - r.cfg.PlatformFeeBps) / 10000
}
