package driver

import (
	"context"
	"regexp"

	"github.com/nagyist/reactive-kafka/kafka"
)

// driverMessage is the sealed interface implemented by every message the
// mailbox loop accepts. It exists only to give the mailbox channel a single
// element type; callers never implement it themselves.
type driverMessage interface {
	isDriverMessage()
}

// requesterToken is an opaque, comparable identity. Its pointer address is
// the identity; no two calls to NewRequesterID ever collide. The field keeps
// the type non-zero-sized, since Go may give every zero-size allocation the
// same address.
type requesterToken struct{ _ byte }

// RequesterID identifies a downstream consumer of RequestMessages across
// its lifetime, so the registry can tell repeated requests from the same
// caller apart from a new one and purge the right entries when it dies.
type RequesterID = *requesterToken

// NewRequesterID allocates a fresh, unique RequesterID.
func NewRequesterID() RequesterID {
	return &requesterToken{}
}

// Assign adds partitions to the client's manual assignment. Already
// assigned partitions are left untouched.
type Assign struct {
	Partitions []kafka.TopicPartition
}

// AssignWithOffset is Assign followed by a seek to the given offset for each
// entry, in that order.
type AssignWithOffset struct {
	Offsets map[kafka.TopicPartition]int64
}

// Subscribe replaces the current topic subscription and installs the
// rebalance listener that will observe future assign/revoke events.
type Subscribe struct {
	Topics   []string
	Listener kafka.RebalanceListener
}

// SubscribePattern is Subscribe by regular expression instead of an
// explicit topic list.
type SubscribePattern struct {
	Pattern  *regexp.Regexp
	Listener kafka.RebalanceListener
}

// NewSubscribePattern compiles pattern once and wraps it in a
// SubscribePattern message, so the regex is never recompiled for the life
// of the subscription.
func NewSubscribePattern(pattern string, listener kafka.RebalanceListener) (SubscribePattern, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return SubscribePattern{}, err
	}
	return SubscribePattern{Pattern: re, Listener: listener}, nil
}

// RequestMessages is a one-shot demand signal: delivery of any records for a
// requested partition consumes the demand for that partition, and the
// caller must re-issue to continue receiving. Context, if non-nil, is
// watched for cancellation to purge this requester's entries on death; only
// the Context of a requester's first request is watched (see
// Driver.RequestMessages).
type RequestMessages struct {
	Requester  RequesterID
	Partitions []kafka.TopicPartition
	Context    context.Context
	Reply      chan<- RequestResult
}

// Messages is a batch of records delivered to one requester from one poll
// cycle, in place of the lazy per-partition iterator concatenation an
// actor-mailbox port would use — a plain slice is simpler and sufficient
// once batches are already bounded by the Kafka client's max-records limit.
type Messages struct {
	Records []kafka.ConsumerRecord
}

// RequestResult is delivered on a RequestMessages reply channel: either a
// non-empty Messages batch, or Err set to ErrStopping if the driver refused
// the request because it is shutting down.
type RequestResult struct {
	Messages Messages
	Err      error
}

// Commit issues an offset commit. The reply carries either the committed
// offsets or the error from the commit callback (ErrStopping if the driver
// is shutting down).
type Commit struct {
	Offsets map[kafka.TopicPartition]kafka.Offset
	Reply   chan<- CommitResult
}

// CommitResult is delivered on a Commit reply channel.
type CommitResult struct {
	Offsets map[kafka.TopicPartition]kafka.OffsetAndMetadata
	Err     error
}

// Stop asks the driver to terminate. If commits are in flight it drains
// them first; see Driver.Stop.
type Stop struct{}

// pollTick is the internal message sent by the poll ticker.
type pollTick struct{}

// requesterGone is sent when a RequestMessages caller's Context is done,
// triggering a purge of that requester's entries from the registry.
type requesterGone struct {
	id RequesterID
}

func (Assign) isDriverMessage()           {}
func (AssignWithOffset) isDriverMessage() {}
func (Subscribe) isDriverMessage()        {}
func (SubscribePattern) isDriverMessage() {}
func (RequestMessages) isDriverMessage()  {}
func (Commit) isDriverMessage()           {}
func (Stop) isDriverMessage()             {}
func (pollTick) isDriverMessage()         {}
func (requesterGone) isDriverMessage()    {}
