package reputation

import (
	"errors"
	"fmt"

	"github.com/russross/meddler"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/internal/store"
	"github.com/workmesh/marketmirror/internal/types"
)

// Aggregator folds submitted ratings into per-account weighted scores. It
// never stores raw rating history on the account; only the running aggregate
// and the count.
type Aggregator struct {
	store *store.Store
	log   *logger.Logger
}

// New creates an Aggregator backed by the given store.
func New(s *store.Store, log *logger.Logger) *Aggregator {
	return &Aggregator{
		store: s,
		log:   log.WithComponent("reputation"),
	}
}

// Apply records a rating and recomputes the ratee's weighted score. It runs
// inside the caller's transaction so the rating row, the aggregate, and the
// idempotency record commit together.
//
// A duplicate rating for the same (job, rater) pair returns
// types.ErrAlreadyApplied. A value outside the 1..5 range returns a
// ValidationError.
func (a *Aggregator) Apply(q meddler.DB, event *types.DecodedEvent) error {
	if event.Rating < types.RatingMin || event.Rating > types.RatingMax {
		return &types.ValidationError{
			Reason: fmt.Sprintf("rating value %d outside range %d..%d", event.Rating, types.RatingMin, types.RatingMax),
		}
	}

	raterHash := types.HashAccount(event.Account)
	rateeHash := types.HashAccount(event.CounterAccount)

	exists, err := a.store.RatingExists(q, event.JobID, raterHash)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("rating for job %d by %s: %w", event.JobID, raterHash.Hex(), types.ErrAlreadyApplied)
	}

	if err := a.store.InsertRating(q, &types.Rating{
		JobID:     event.JobID,
		RaterHash: raterHash,
		RateeHash: rateeHash,
		Value:     event.Rating,
		TxHash:    event.TxHash,
		CreatedAt: event.Timestamp,
	}); err != nil {
		return err
	}

	var oldScore, oldCount uint64
	rep, err := a.store.GetReputation(q, rateeHash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// first rating for this account
	case err != nil:
		return err
	default:
		oldScore = rep.WeightedScore
		oldCount = rep.RatingCount
	}

	newScore := types.NextWeightedScore(oldScore, event.Rating)
	if err := a.store.UpsertReputation(q, &types.ReputationAccount{
		AccountHash:   rateeHash,
		WeightedScore: newScore,
		RatingCount:   oldCount + 1,
		LastUpdatedAt: event.Timestamp,
	}); err != nil {
		return err
	}

	a.log.Debugf("applied rating %d for job %d: account %s score %d -> %d",
		event.Rating, event.JobID, rateeHash.Hex(), oldScore, newScore)

	return nil
}
