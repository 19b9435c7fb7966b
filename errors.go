package driver

import (
	"errors"
	"fmt"

	"github.com/nagyist/reactive-kafka/kafka"
)

// ClientError wraps a failure raised by the Kafka client during assign,
// subscribe, or poll. It is fatal: the driver terminates and restart
// responsibility belongs to the supervisor holding the Driver.
type ClientError struct {
	Op    string
	Cause error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("kafka client: %s: %v", e.Op, e.Cause)
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// CommitError wraps a commit callback's non-nil error. It is reported to the
// original Commit caller only; the driver continues running.
type CommitError struct {
	Offsets map[kafka.TopicPartition]kafka.Offset
	Cause   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed for %d partition(s): %v", len(e.Offsets), e.Cause)
}

func (e *CommitError) Unwrap() error {
	return e.Cause
}

// StoppingError is returned to RequestMessages and Commit callers once the
// driver has entered Stopping.
type StoppingError struct{}

func (e *StoppingError) Error() string {
	return "driver is stopping, request rejected"
}

// ErrStopping is the sentinel StoppingError instance returned on the reply
// channel of any request rejected during shutdown.
var ErrStopping = &StoppingError{}

// InvariantViolation signals a driver-internal contract breach: records
// returned for a partition outside the current demand set, or any record at
// all surfacing while demand is empty. It is fatal.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}

// AsClientError reports whether err is, or wraps, a *ClientError.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	ok := errors.As(err, &ce)
	return ce, ok
}

// AsCommitError reports whether err is, or wraps, a *CommitError.
func AsCommitError(err error) (*CommitError, bool) {
	var ce *CommitError
	ok := errors.As(err, &ce)
	return ce, ok
}
