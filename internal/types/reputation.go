package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Rating score bounds and weighted-average constants. Scores are kept as
// fixed-point integers scaled by 100 (so a 4.37 average is stored as 437).
const (
	RatingMin = 1
	RatingMax = 5

	ScoreScale = 100

	// Each new rating carries slightly more weight than the accumulated
	// history, so the score drifts toward recent behavior.
	WeightNew = 100
	WeightOld = 95
)

// HashAccount derives the storage key for a reputation account from a raw
// account identifier. Keying by hash keeps rating rows fixed-width and avoids
// storing full addresses twice per rating.
func HashAccount(account common.Hash) common.Hash {
	return crypto.Keccak256Hash(account.Bytes())
}

// NextWeightedScore folds a new rating value (1..5) into the current
// fixed-point score.
func NextWeightedScore(oldScore uint64, value uint8) uint64 {
	if oldScore == 0 {
		return uint64(value) * ScoreScale
	}
	return (uint64(value)*ScoreScale*WeightNew + oldScore*WeightOld) / (WeightNew + WeightOld)
}

// ReputationAccount is the running reputation aggregate for one account,
// keyed by the account identifier hash.
type ReputationAccount struct {
	AccountHash   common.Hash `meddler:"account_hash,hash" json:"account_hash"`
	WeightedScore uint64      `meddler:"weighted_score" json:"weighted_score"`
	RatingCount   uint64      `meddler:"rating_count" json:"rating_count"`
	LastUpdatedAt int64       `meddler:"last_updated_at" json:"last_updated_at"`
}

// Rating is a single applied rating. The (job_id, rater_hash) pair is unique:
// a duplicate submission for the same job and rater is rejected, never merged.
type Rating struct {
	ID        int64       `meddler:"id,pk" json:"id"`
	JobID     uint64      `meddler:"job_id" json:"job_id"`
	RaterHash common.Hash `meddler:"rater_hash,hash" json:"rater_hash"`
	RateeHash common.Hash `meddler:"ratee_hash,hash" json:"ratee_hash"`
	Value     uint8       `meddler:"value" json:"value"`
	TxHash    common.Hash `meddler:"tx_hash,hash" json:"tx_hash"`
	CreatedAt int64       `meddler:"created_at" json:"created_at"`
}
