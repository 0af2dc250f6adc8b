package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workmesh/marketmirror/internal/db"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/internal/migrations"
	"github.com/workmesh/marketmirror/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := t.TempDir() + "/test_store.db"
	require.NoError(t, migrations.RunMigrations(dbPath))

	conn, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return New(conn, logger.NewNopLogger())
}

func testJob(id uint64, status types.JobStatus) *types.Job {
	return &types.Job{
		ID:            id,
		Employer:      common.HexToHash("0xe1"),
		Wages:         800,
		DurationHours: 40,
		Category:      "design",
		Status:        status,
		CreatedAt:     1000,
		UpdatedAt:     1000,
	}
}

func TestStoreJobRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetJob(s.DB(), 1)
	require.ErrorIs(t, err, ErrNotFound)

	job := testJob(1, types.JobPosted)
	require.NoError(t, s.InsertJob(s.DB(), job))

	got, err := s.GetJob(s.DB(), 1)
	require.NoError(t, err)
	assert.Equal(t, job.Employer, got.Employer)
	assert.Equal(t, types.JobPosted, got.Status)
	assert.Nil(t, got.Worker)

	worker := common.HexToHash("0x77")
	got.Worker = &worker
	got.Status = types.JobAssigned
	got.UpdatedAt = 2000
	require.NoError(t, s.UpdateJob(s.DB(), got))

	got, err = s.GetJob(s.DB(), 1)
	require.NoError(t, err)
	require.NotNil(t, got.Worker)
	assert.Equal(t, worker, *got.Worker)
	assert.Equal(t, types.JobAssigned, got.Status)
}

func TestStoreListJobs(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.InsertJob(s.DB(), testJob(1, types.JobPosted)))
	require.NoError(t, s.InsertJob(s.DB(), testJob(2, types.JobAssigned)))
	j3 := testJob(3, types.JobPosted)
	j3.Category = "engineering"
	require.NoError(t, s.InsertJob(s.DB(), j3))

	posted, err := s.ListJobs(s.DB(), JobFilter{Status: types.JobPosted})
	require.NoError(t, err)
	require.Len(t, posted, 2)

	eng, err := s.ListJobs(s.DB(), JobFilter{Status: types.JobPosted, Category: "engineering"})
	require.NoError(t, err)
	require.Len(t, eng, 1)
	assert.Equal(t, uint64(3), eng[0].ID)

	// cursor pagination
	page, err := s.ListJobs(s.DB(), JobFilter{Cursor: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].ID)
}

func TestStoreEscrowUniquePerJob(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.InsertJob(s.DB(), testJob(1, types.JobAssigned)))

	escrow := &types.Escrow{
		ID:       9,
		JobID:    1,
		Amount:   800,
		Employer: common.HexToHash("0xe1"),
		Worker:   common.HexToHash("0x77"),
		Status:   types.EscrowCreated,
		Deadline: 5000,
	}
	require.NoError(t, s.InsertEscrow(s.DB(), escrow))

	// second escrow for the same job violates the unique constraint
	dup := *escrow
	dup.ID = 10
	require.Error(t, s.InsertEscrow(s.DB(), &dup))

	got, err := s.GetEscrowByJob(s.DB(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.ID)
}

func TestStoreExpiredEscrows(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.InsertJob(s.DB(), testJob(1, types.JobAssigned)))
	require.NoError(t, s.InsertJob(s.DB(), testJob(2, types.JobAssigned)))
	require.NoError(t, s.InsertJob(s.DB(), testJob(3, types.JobAssigned)))

	mk := func(id, jobID uint64, status types.EscrowStatus, deadline int64) {
		require.NoError(t, s.InsertEscrow(s.DB(), &types.Escrow{
			ID: id, JobID: jobID, Amount: 800,
			Employer: common.HexToHash("0xe1"), Worker: common.HexToHash("0x77"),
			Status: status, Deadline: deadline,
		}))
	}

	mk(1, 1, types.EscrowLocked, 100)    // expired
	mk(2, 2, types.EscrowCompleted, 100) // terminal, ignored
	mk(3, 3, types.EscrowFunded, 9999)   // not yet expired

	expired, err := s.ListOpenEscrowsPastDeadline(s.DB(), 500)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, uint64(1), expired[0].ID)
}

func TestStoreProcessedTransactions(t *testing.T) {
	s := setupTestStore(t)

	hash := common.HexToHash("0xaaa")
	ok, err := s.IsProcessed(s.DB(), hash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkProcessed(s.DB(), &types.ProcessedTransaction{
		TxHash: hash, Kind: types.KindJobCreated, Outcome: "applied", ProcessedAt: 1000,
	}))

	ok, err = s.IsProcessed(s.DB(), hash)
	require.NoError(t, err)
	assert.True(t, ok)

	// duplicate insert hits the primary key
	err = s.MarkProcessed(s.DB(), &types.ProcessedTransaction{
		TxHash: hash, Kind: types.KindJobCreated, Outcome: "applied", ProcessedAt: 1001,
	})
	require.Error(t, err)
}

func TestStoreCursor(t *testing.T) {
	s := setupTestStore(t)

	cursor, err := s.GetCursor(s.DB(), "addr-1")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	require.NoError(t, s.SaveCursor(s.DB(), &types.Cursor{Address: "addr-1", LastSequence: 42, UpdatedAt: 1000}))
	require.NoError(t, s.SaveCursor(s.DB(), &types.Cursor{Address: "addr-1", LastSequence: 43, UpdatedAt: 1001}))

	cursor, err = s.GetCursor(s.DB(), "addr-1")
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint64(43), cursor.LastSequence)
}

func TestStoreWithTxRollsBackOnError(t *testing.T) {
	s := setupTestStore(t)

	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := s.InsertJob(tx, testJob(1, types.JobPosted)); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.GetJob(s.DB(), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreReputationAndRatings(t *testing.T) {
	s := setupTestStore(t)

	acct := types.HashAccount(common.HexToHash("0x77"))
	_, err := s.GetReputation(s.DB(), acct)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertReputation(s.DB(), &types.ReputationAccount{
		AccountHash: acct, WeightedScore: 500, RatingCount: 1, LastUpdatedAt: 1000,
	}))
	require.NoError(t, s.UpsertReputation(s.DB(), &types.ReputationAccount{
		AccountHash: acct, WeightedScore: 397, RatingCount: 2, LastUpdatedAt: 1001,
	}))

	rep, err := s.GetReputation(s.DB(), acct)
	require.NoError(t, err)
	assert.Equal(t, uint64(397), rep.WeightedScore)
	assert.Equal(t, uint64(2), rep.RatingCount)

	rater := types.HashAccount(common.HexToHash("0xe1"))
	exists, err := s.RatingExists(s.DB(), 5, rater)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.InsertRating(s.DB(), &types.Rating{
		JobID: 5, RaterHash: rater, RateeHash: acct, Value: 5,
		TxHash: common.HexToHash("0xbb"), CreatedAt: 1000,
	}))

	exists, err = s.RatingExists(s.DB(), 5, rater)
	require.NoError(t, err)
	assert.True(t, exists)

	// unique (job_id, rater_hash)
	err = s.InsertRating(s.DB(), &types.Rating{
		JobID: 5, RaterHash: rater, RateeHash: acct, Value: 3,
		TxHash: common.HexToHash("0xcc"), CreatedAt: 1001,
	})
	require.Error(t, err)
}
