package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobPosted, JobAssigned, true},
		{JobPosted, JobCancelled, true},
		{JobPosted, JobCompleted, false},
		{JobAssigned, JobCompleted, true},
		{JobAssigned, JobCancelled, true},
		{JobAssigned, JobPosted, false},
		{JobCompleted, JobCancelled, false},
		{JobCancelled, JobAssigned, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}

	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobCancelled.Terminal())
	assert.False(t, JobAssigned.Terminal())
}

func TestEscrowStatusTransitions(t *testing.T) {
	tests := []struct {
		from    EscrowStatus
		to      EscrowStatus
		allowed bool
	}{
		{EscrowCreated, EscrowFunded, true},
		{EscrowCreated, EscrowLocked, true},
		{EscrowFunded, EscrowLocked, true},
		{EscrowFunded, EscrowRefunded, true},
		{EscrowLocked, EscrowCompleted, true},
		{EscrowLocked, EscrowDisputed, true},
		{EscrowLocked, EscrowRefunded, true},
		{EscrowDisputed, EscrowResolved, true},
		// terminal states admit nothing
		{EscrowCompleted, EscrowRefunded, false},
		{EscrowRefunded, EscrowCompleted, false},
		{EscrowResolved, EscrowCompleted, false},
		// a disputed escrow is frozen against auto-release
		{EscrowDisputed, EscrowCompleted, false},
		{EscrowDisputed, EscrowRefunded, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}

	for _, s := range []EscrowStatus{EscrowCompleted, EscrowResolved, EscrowRefunded} {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
}

func TestParseJobStatus(t *testing.T) {
	s, ok := ParseJobStatus(2)
	require.True(t, ok)
	assert.Equal(t, JobCompleted, s)

	_, ok = ParseJobStatus(7)
	assert.False(t, ok)
}

func TestNextWeightedScore(t *testing.T) {
	// First rating initializes the score directly.
	assert.Equal(t, uint64(400), NextWeightedScore(0, 4))

	// New ratings weigh slightly more than history: 5 then 3 lands below the
	// flat average of 4.0.
	score := NextWeightedScore(0, 5)
	score = NextWeightedScore(score, 3)
	// (300*100 + 500*95) / 195 = 397
	assert.Equal(t, uint64(397), score)

	// Repeated identical ratings converge to the rating value.
	score = uint64(100)
	for i := 0; i < 50; i++ {
		score = NextWeightedScore(score, 5)
	}
	assert.InDelta(t, 500, float64(score), 3)
}

func TestHashAccountDeterministic(t *testing.T) {
	a := common.HexToHash("0x01")
	require.Equal(t, HashAccount(a), HashAccount(a))
	require.NotEqual(t, HashAccount(a), HashAccount(common.HexToHash("0x02")))
}
