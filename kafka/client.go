package kafka

import (
	"context"
	"regexp"
	"time"
)

// Consumer is the third-party client surface the driver assumes: assign,
// seek, subscribe (by topic list or pattern), pause/resume, poll, and
// asynchronous commit. It is strictly non-thread-safe — every method must be
// called from a single goroutine.
type Consumer interface {
	// Assign adds partitions to the client's manual assignment. Already
	// assigned partitions are left untouched; new ones start at the broker
	// default position.
	Assign(partitions []TopicPartition) error

	// AssignWithOffset is Assign followed by a seek to the given offset for
	// each entry, in that order.
	AssignWithOffset(offsets map[TopicPartition]int64) error

	// Subscribe replaces the current topic subscription and installs the
	// rebalance listener that will observe future assign/revoke events.
	Subscribe(topics []string, listener RebalanceListener) error

	// SubscribePattern is Subscribe by regular expression instead of an
	// explicit topic list.
	SubscribePattern(pattern *regexp.Regexp, listener RebalanceListener) error

	// Pause and Resume suppress or allow fetching on the given partitions
	// starting with the next Poll call.
	Pause(partitions ...TopicPartition)
	Resume(partitions ...TopicPartition)

	// Assignment reports the partitions currently assigned to this client,
	// whether by Assign or by group rebalance.
	Assignment() []TopicPartition

	// Poll fetches records, and as a side effect may invoke rebalance
	// listeners and commit callbacks registered via CommitAsync. It blocks
	// for at most timeout.
	Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error)

	// CommitAsync issues an offset commit and returns immediately; onDone is
	// invoked from within a later Poll call, never synchronously.
	CommitAsync(ctx context.Context, offsets map[TopicPartition]Offset, onDone CommitCallback)

	// Close releases the client. Idempotent.
	Close()
}

// CommitCallback is invoked once per CommitAsync call, from inside a
// subsequent Poll, with either the committed offsets or the broker/transport
// error that caused the commit to fail.
type CommitCallback func(offsets map[TopicPartition]Offset, err error)

// RebalanceListener observes partition assignment changes driven by the
// underlying client's group rebalances. Direct Assign and AssignWithOffset
// calls do not notify it.
type RebalanceListener interface {
	OnAssigned(partitions []TopicPartition)
	OnRevoked(partitions []TopicPartition)
}

// RebalanceListenerFuncs adapts two plain functions to a RebalanceListener,
// for callers who don't need a dedicated type. A nil field is a no-op.
type RebalanceListenerFuncs struct {
	OnAssignedFunc func(partitions []TopicPartition)
	OnRevokedFunc  func(partitions []TopicPartition)
}

func (f RebalanceListenerFuncs) OnAssigned(partitions []TopicPartition) {
	if f.OnAssignedFunc != nil {
		f.OnAssignedFunc(partitions)
	}
}

func (f RebalanceListenerFuncs) OnRevoked(partitions []TopicPartition) {
	if f.OnRevokedFunc != nil {
		f.OnRevokedFunc(partitions)
	}
}
