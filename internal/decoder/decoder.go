package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/workmesh/marketmirror/internal/ledger"
	"github.com/workmesh/marketmirror/internal/types"
)

// maxStringField bounds variable-length payload fields (category, dispute
// reason). Anything larger is structurally invalid.
const maxStringField = 4096

// Decode turns a raw ledger transaction into a typed event. It returns
// ErrUnrecognizedOp for unknown op tags and a *DecodeError for recognized ops
// with malformed payloads. Neither outcome is retryable.
func Decode(tx ledger.Transaction) (*types.DecodedEvent, error) {
	event := &types.DecodedEvent{
		TxHash:    tx.Hash,
		Sequence:  tx.Sequence,
		Timestamp: tx.Timestamp,
	}

	r := payloadReader{buf: tx.Payload, opTag: tx.OpTag}

	var err error
	switch tx.OpTag {
	case types.OpJobCreated:
		err = decodeJobCreated(&r, event)
	case types.OpWorkerAssigned:
		err = decodeWorkerAssigned(&r, event)
	case types.OpJobStatusUpdated:
		err = decodeJobStatusUpdated(&r, event)
	case types.OpJobCancelled:
		err = decodeJobCancelled(&r, event)
	case types.OpEscrowCreated:
		err = decodeEscrowCreated(&r, event)
	case types.OpEscrowFunded:
		err = decodeEscrowFunded(&r, event)
	case types.OpEscrowLocked:
		err = decodeEscrowLocked(&r, event)
	case types.OpEscrowCompleted:
		err = decodeEscrowCompleted(&r, event)
	case types.OpEscrowDisputed:
		err = decodeEscrowDisputed(&r, event)
	case types.OpEscrowResolved:
		err = decodeEscrowResolved(&r, event)
	case types.OpRatingSubmitted:
		err = decodeRatingSubmitted(&r, event)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnrecognizedOp, tx.OpTag)
	}
	if err != nil {
		return nil, err
	}

	if r.remaining() > 0 {
		return nil, &DecodeError{OpTag: tx.OpTag, Reason: fmt.Sprintf("%d trailing bytes", r.remaining())}
	}

	return event, nil
}

func decodeJobCreated(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindJobCreated
	if e.JobID, err = r.uint64("job id"); err != nil {
		return err
	}
	if e.Account, err = r.hash("employer"); err != nil {
		return err
	}
	if e.Amount, err = r.uint64("wages"); err != nil {
		return err
	}
	duration, err := r.uint32("duration hours")
	if err != nil {
		return err
	}
	e.DurationHours = uint64(duration)
	if e.Category, err = r.lengthPrefixedString("category"); err != nil {
		return err
	}
	return nil
}

func decodeWorkerAssigned(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindWorkerAssigned
	if e.JobID, err = r.uint64("job id"); err != nil {
		return err
	}
	if e.Account, err = r.hash("worker"); err != nil {
		return err
	}
	return nil
}

func decodeJobStatusUpdated(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindJobStatusUpdated
	if e.JobID, err = r.uint64("job id"); err != nil {
		return err
	}
	code, err := r.uint8("status code")
	if err != nil {
		return err
	}
	status, ok := types.ParseJobStatus(code)
	if !ok {
		return &DecodeError{OpTag: r.opTag, Reason: fmt.Sprintf("unknown job status code %d", code)}
	}
	e.Status = status
	return nil
}

func decodeJobCancelled(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindJobCancelled
	if e.JobID, err = r.uint64("job id"); err != nil {
		return err
	}
	if e.Account, err = r.hash("canceller"); err != nil {
		return err
	}
	return nil
}

func decodeEscrowCreated(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindEscrowCreated
	if e.EscrowID, err = r.uint64("escrow id"); err != nil {
		return err
	}
	if e.JobID, err = r.uint64("job id"); err != nil {
		return err
	}
	if e.Amount, err = r.uint64("amount"); err != nil {
		return err
	}
	if e.Account, err = r.hash("employer"); err != nil {
		return err
	}
	if e.CounterAccount, err = r.hash("worker"); err != nil {
		return err
	}
	deadline, err := r.uint64("deadline")
	if err != nil {
		return err
	}
	e.Deadline = int64(deadline)
	return nil
}

func decodeEscrowFunded(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindEscrowFunded
	if e.EscrowID, err = r.uint64("escrow id"); err != nil {
		return err
	}
	if e.Amount, err = r.uint64("amount"); err != nil {
		return err
	}
	if e.Account, err = r.hash("funder"); err != nil {
		return err
	}
	return nil
}

func decodeEscrowLocked(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindEscrowLocked
	if e.EscrowID, err = r.uint64("escrow id"); err != nil {
		return err
	}
	return nil
}

func decodeEscrowCompleted(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindEscrowCompleted
	if e.EscrowID, err = r.uint64("escrow id"); err != nil {
		return err
	}
	if e.Account, err = r.hash("confirmer"); err != nil {
		return err
	}
	return nil
}

func decodeEscrowDisputed(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindEscrowDisputed
	if e.EscrowID, err = r.uint64("escrow id"); err != nil {
		return err
	}
	if e.Account, err = r.hash("raiser"); err != nil {
		return err
	}
	if e.Reason, err = r.lengthPrefixedString("reason"); err != nil {
		return err
	}
	return nil
}

func decodeEscrowResolved(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindEscrowResolved
	if e.EscrowID, err = r.uint64("escrow id"); err != nil {
		return err
	}
	winner, err := r.uint8("winner")
	if err != nil {
		return err
	}
	switch winner {
	case 0:
		e.Winner = types.ResolvedToEmployer
	case 1:
		e.Winner = types.ResolvedToWorker
	default:
		return &DecodeError{OpTag: r.opTag, Reason: fmt.Sprintf("unknown winner code %d", winner)}
	}
	return nil
}

func decodeRatingSubmitted(r *payloadReader, e *types.DecodedEvent) error {
	var err error
	e.Kind = types.KindRatingSubmitted
	if e.JobID, err = r.uint64("job id"); err != nil {
		return err
	}
	if e.Account, err = r.hash("rater"); err != nil {
		return err
	}
	if e.CounterAccount, err = r.hash("ratee"); err != nil {
		return err
	}
	if e.Rating, err = r.uint8("rating value"); err != nil {
		return err
	}
	return nil
}

// payloadReader consumes big-endian fixed-width fields from a payload,
// reporting the field that could not be read.
type payloadReader struct {
	buf   []byte
	pos   int
	opTag uint32
}

func (r *payloadReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *payloadReader) take(n int, field string) ([]byte, error) {
	if r.remaining() < n {
		return nil, &DecodeError{
			OpTag:  r.opTag,
			Reason: fmt.Sprintf("truncated %s: need %d bytes, have %d", field, n, r.remaining()),
		}
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *payloadReader) uint8(field string) (uint8, error) {
	b, err := r.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *payloadReader) uint32(field string) (uint32, error) {
	b, err := r.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *payloadReader) uint64(field string) (uint64, error) {
	b, err := r.take(8, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *payloadReader) hash(field string) (common.Hash, error) {
	b, err := r.take(common.HashLength, field)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(b), nil
}

func (r *payloadReader) lengthPrefixedString(field string) (string, error) {
	b, err := r.take(2, field+" length")
	if err != nil {
		return "", err
	}
	length := int(binary.BigEndian.Uint16(b))
	if length > maxStringField {
		return "", &DecodeError{
			OpTag:  r.opTag,
			Reason: fmt.Sprintf("%s length %d exceeds limit %d", field, length, maxStringField),
		}
	}
	s, err := r.take(length, field)
	if err != nil {
		return "", err
	}
	return string(s), nil
}
