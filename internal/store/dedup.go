package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
	"github.com/workmesh/marketmirror/internal/types"
)

// IsProcessed reports whether the transaction hash already has an idempotency
// record. Checked before every apply so re-delivered transactions become
// no-ops.
func (s *Store) IsProcessed(q meddler.DB, txHash common.Hash) (bool, error) {
	var count int
	row := q.QueryRow(`SELECT COUNT(*) FROM processed_transactions WHERE tx_hash = ?`, txHash.Hex())
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check processed transaction: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed inserts the idempotency record. It must run in the same
// transaction as the state mutation it authorizes.
func (s *Store) MarkProcessed(q meddler.DB, p *types.ProcessedTransaction) error {
	if err := meddler.Insert(q, "processed_transactions", p); err != nil {
		return fmt.Errorf("failed to mark transaction processed: %w", err)
	}
	return nil
}

// GetReputation loads the reputation aggregate for an account hash.
func (s *Store) GetReputation(q meddler.DB, accountHash common.Hash) (*types.ReputationAccount, error) {
	var rep types.ReputationAccount
	err := meddler.QueryRow(q, &rep, `SELECT * FROM reputation_accounts WHERE account_hash = ?`, accountHash.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation: %w", err)
	}
	return &rep, nil
}

// UpsertReputation creates or replaces the reputation aggregate.
func (s *Store) UpsertReputation(q meddler.DB, rep *types.ReputationAccount) error {
	_, err := q.Exec(`
		INSERT INTO reputation_accounts (account_hash, weighted_score, rating_count, last_updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_hash) DO UPDATE SET
			weighted_score = excluded.weighted_score,
			rating_count = excluded.rating_count,
			last_updated_at = excluded.last_updated_at`,
		rep.AccountHash.Hex(), rep.WeightedScore, rep.RatingCount, rep.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reputation: %w", err)
	}
	return nil
}

// RatingExists reports whether a rating for the (job, rater) pair was already
// applied.
func (s *Store) RatingExists(q meddler.DB, jobID uint64, raterHash common.Hash) (bool, error) {
	var count int
	row := q.QueryRow(`SELECT COUNT(*) FROM ratings WHERE job_id = ? AND rater_hash = ?`,
		jobID, raterHash.Hex())
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check rating existence: %w", err)
	}
	return count > 0, nil
}

// InsertRating records one applied rating.
func (s *Store) InsertRating(q meddler.DB, r *types.Rating) error {
	if err := meddler.Insert(q, "ratings", r); err != nil {
		return fmt.Errorf("failed to insert rating: %w", err)
	}
	return nil
}

// GetCursor returns the persisted poll position for an address, or nil when
// the address has never completed a cycle.
func (s *Store) GetCursor(q meddler.DB, address string) (*types.Cursor, error) {
	var cursor types.Cursor
	err := meddler.QueryRow(q, &cursor, `SELECT * FROM poll_cursors WHERE address = ?`, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor for %s: %w", address, err)
	}
	return &cursor, nil
}

// SaveCursor persists the poll position for an address after a successful
// cycle.
func (s *Store) SaveCursor(q meddler.DB, c *types.Cursor) error {
	_, err := q.Exec(`
		INSERT INTO poll_cursors (address, last_sequence, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			last_sequence = excluded.last_sequence,
			updated_at = excluded.updated_at`,
		c.Address, c.LastSequence, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor for %s: %w", c.Address, err)
	}
	return nil
}
