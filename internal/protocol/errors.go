package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed reports that the underlying transport is gone. All pending
	// evaluations fail with this error when the socket drops.
	ErrClosed = errors.New("protocol: link closed")

	// ErrEvalTimeout reports that an evaluation did not complete within the
	// caller's deadline. The link itself stays usable.
	ErrEvalTimeout = errors.New("protocol: evaluation timed out")
)

// ExceptionError carries a remote JavaScript exception raised during an
// evaluation.
type ExceptionError struct {
	Text string
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("protocol: remote exception: %s", e.Text)
}
