package decoder

import (
	"errors"
	"fmt"
)

// ErrUnrecognizedOp marks a transaction whose op tag is unknown. Such
// transactions are skipped, not retried.
var ErrUnrecognizedOp = errors.New("unrecognized operation tag")

// DecodeError reports a structurally invalid payload for a recognized
// operation. The decoded bytes will never become valid, so callers must not
// retry.
type DecodeError struct {
	OpTag  uint32
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode payload for op %d: %s", e.OpTag, e.Reason)
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}
