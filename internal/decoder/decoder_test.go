package decoder

import (
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workmesh/marketmirror/internal/ledger"
	"github.com/workmesh/marketmirror/internal/types"
)

// payloadBuilder mirrors the encoding the contracts use: big-endian
// fixed-width fields, strings length-prefixed with a uint16.
type payloadBuilder struct {
	buf []byte
}

func (b *payloadBuilder) u8(v uint8) *payloadBuilder {
	b.buf = append(b.buf, v)
	return b
}

func (b *payloadBuilder) u32(v uint32) *payloadBuilder {
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
	return b
}

func (b *payloadBuilder) u64(v uint64) *payloadBuilder {
	b.buf = binary.BigEndian.AppendUint64(b.buf, v)
	return b
}

func (b *payloadBuilder) hash(h common.Hash) *payloadBuilder {
	b.buf = append(b.buf, h.Bytes()...)
	return b
}

func (b *payloadBuilder) str(s string) *payloadBuilder {
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

func tx(opTag uint32, payload []byte) ledger.Transaction {
	return ledger.Transaction{
		Hash:      common.HexToHash("0xabc"),
		Sequence:  7,
		OpTag:     opTag,
		Payload:   payload,
		Timestamp: 1700000000,
	}
}

func TestDecodeJobCreated(t *testing.T) {
	employer := common.HexToHash("0xe1")
	payload := (&payloadBuilder{}).u64(42).hash(employer).u64(800).u32(40).str("design").buf

	event, err := Decode(tx(types.OpJobCreated, payload))
	require.NoError(t, err)

	assert.Equal(t, types.KindJobCreated, event.Kind)
	assert.Equal(t, common.HexToHash("0xabc"), event.TxHash)
	assert.Equal(t, uint64(7), event.Sequence)
	assert.Equal(t, uint64(42), event.JobID)
	assert.Equal(t, employer, event.Account)
	assert.Equal(t, uint64(800), event.Amount)
	assert.Equal(t, uint64(40), event.DurationHours)
	assert.Equal(t, "design", event.Category)
}

func TestDecodeWorkerAssigned(t *testing.T) {
	worker := common.HexToHash("0x77")
	payload := (&payloadBuilder{}).u64(42).hash(worker).buf

	event, err := Decode(tx(types.OpWorkerAssigned, payload))
	require.NoError(t, err)

	assert.Equal(t, types.KindWorkerAssigned, event.Kind)
	assert.Equal(t, uint64(42), event.JobID)
	assert.Equal(t, worker, event.Account)
}

func TestDecodeJobStatusUpdated(t *testing.T) {
	payload := (&payloadBuilder{}).u64(42).u8(2).buf

	event, err := Decode(tx(types.OpJobStatusUpdated, payload))
	require.NoError(t, err)
	assert.Equal(t, types.KindJobStatusUpdated, event.Kind)
	assert.Equal(t, types.JobCompleted, event.Status)

	// unknown status code is a structural fault, not a deferrable one
	bad := (&payloadBuilder{}).u64(42).u8(99).buf
	_, err = Decode(tx(types.OpJobStatusUpdated, bad))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestDecodeEscrowCreated(t *testing.T) {
	employer := common.HexToHash("0xe1")
	worker := common.HexToHash("0x77")
	payload := (&payloadBuilder{}).u64(9).u64(42).u64(800).hash(employer).hash(worker).u64(1700005000).buf

	event, err := Decode(tx(types.OpEscrowCreated, payload))
	require.NoError(t, err)

	assert.Equal(t, types.KindEscrowCreated, event.Kind)
	assert.Equal(t, uint64(9), event.EscrowID)
	assert.Equal(t, uint64(42), event.JobID)
	assert.Equal(t, uint64(800), event.Amount)
	assert.Equal(t, employer, event.Account)
	assert.Equal(t, worker, event.CounterAccount)
	assert.Equal(t, int64(1700005000), event.Deadline)
}

func TestDecodeEscrowFunded(t *testing.T) {
	funder := common.HexToHash("0xe1")
	payload := (&payloadBuilder{}).u64(9).u64(800).hash(funder).buf

	event, err := Decode(tx(types.OpEscrowFunded, payload))
	require.NoError(t, err)
	assert.Equal(t, types.KindEscrowFunded, event.Kind)
	assert.Equal(t, uint64(9), event.EscrowID)
	assert.Equal(t, uint64(800), event.Amount)
	assert.Equal(t, funder, event.Account)
}

func TestDecodeEscrowLocked(t *testing.T) {
	event, err := Decode(tx(types.OpEscrowLocked, (&payloadBuilder{}).u64(9).buf))
	require.NoError(t, err)
	assert.Equal(t, types.KindEscrowLocked, event.Kind)
	assert.Equal(t, uint64(9), event.EscrowID)
}

func TestDecodeEscrowDisputed(t *testing.T) {
	raiser := common.HexToHash("0x77")
	payload := (&payloadBuilder{}).u64(9).hash(raiser).str("work not delivered").buf

	event, err := Decode(tx(types.OpEscrowDisputed, payload))
	require.NoError(t, err)
	assert.Equal(t, types.KindEscrowDisputed, event.Kind)
	assert.Equal(t, raiser, event.Account)
	assert.Equal(t, "work not delivered", event.Reason)
}

func TestDecodeEscrowResolved(t *testing.T) {
	event, err := Decode(tx(types.OpEscrowResolved, (&payloadBuilder{}).u64(9).u8(1).buf))
	require.NoError(t, err)
	assert.Equal(t, types.KindEscrowResolved, event.Kind)
	assert.Equal(t, types.ResolvedToWorker, event.Winner)

	event, err = Decode(tx(types.OpEscrowResolved, (&payloadBuilder{}).u64(9).u8(0).buf))
	require.NoError(t, err)
	assert.Equal(t, types.ResolvedToEmployer, event.Winner)

	_, err = Decode(tx(types.OpEscrowResolved, (&payloadBuilder{}).u64(9).u8(7).buf))
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
}

func TestDecodeRatingSubmitted(t *testing.T) {
	rater := common.HexToHash("0xe1")
	ratee := common.HexToHash("0x77")
	payload := (&payloadBuilder{}).u64(42).hash(rater).hash(ratee).u8(5).buf

	event, err := Decode(tx(types.OpRatingSubmitted, payload))
	require.NoError(t, err)
	assert.Equal(t, types.KindRatingSubmitted, event.Kind)
	assert.Equal(t, uint64(42), event.JobID)
	assert.Equal(t, rater, event.Account)
	assert.Equal(t, ratee, event.CounterAccount)
	assert.Equal(t, uint8(5), event.Rating)
}

func TestDecodeUnrecognizedOp(t *testing.T) {
	_, err := Decode(tx(999, []byte{0x01}))
	require.ErrorIs(t, err, ErrUnrecognizedOp)
	assert.False(t, IsDecodeError(err))
}

func TestDecodeMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		opTag   uint32
		payload []byte
	}{
		{
			name:    "empty job created",
			opTag:   types.OpJobCreated,
			payload: nil,
		},
		{
			name:    "truncated employer hash",
			opTag:   types.OpJobCreated,
			payload: (&payloadBuilder{}).u64(42).u8(0xff).buf,
		},
		{
			name:    "category length past end",
			opTag:   types.OpJobCreated,
			payload: append((&payloadBuilder{}).u64(42).hash(common.Hash{}).u64(800).u32(40).buf, 0x00, 0x20),
		},
		{
			name:    "trailing bytes",
			opTag:   types.OpEscrowLocked,
			payload: (&payloadBuilder{}).u64(9).u8(0xff).buf,
		},
		{
			name:    "truncated escrow created",
			opTag:   types.OpEscrowCreated,
			payload: (&payloadBuilder{}).u64(9).u64(42).buf,
		},
		{
			name:    "rating missing value",
			opTag:   types.OpRatingSubmitted,
			payload: (&payloadBuilder{}).u64(42).hash(common.Hash{}).hash(common.Hash{}).buf,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tx(tt.opTag, tt.payload))
			require.Error(t, err)
			assert.True(t, IsDecodeError(err), "expected DecodeError, got %v", err)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, tt.opTag, decodeErr.OpTag)
		})
	}
}
