package mockkafka

import (
	"testing"

	"github.com/nagyist/reactive-kafka/kafka"
	"github.com/stretchr/testify/require"
)

// AssertCommitted verifies that an offset was committed for the topic-partition.
func (c *Client) AssertCommitted(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	_, ok := c.CommittedOffset(tp)
	require.True(tb, ok, "committed offset not found for %s-%d", tp.Topic, tp.Partition)
}

// AssertCommittedOffset verifies that a specific offset was committed.
func (c *Client) AssertCommittedOffset(tb testing.TB, tp kafka.TopicPartition, expectedOffset int64) {
	tb.Helper()

	actual, ok := c.CommittedOffset(tp)
	require.True(
		tb, ok,
		"expected offset %d to be committed for %s-%d, but none found",
		expectedOffset, tp.Topic, tp.Partition,
	)

	require.Equal(
		tb, expectedOffset, actual.Offset, "expected offset %d to be committed for %s-%d, got %d", expectedOffset,
		tp.Topic, tp.Partition, actual.Offset,
	)
}

// AssertCommittedAtLeast verifies that the committed offset is at least the expected value.
func (c *Client) AssertCommittedAtLeast(tb testing.TB, tp kafka.TopicPartition, minOffset int64) {
	tb.Helper()

	actual, ok := c.CommittedOffset(tp)
	require.True(
		tb, ok, "expected offset >= %d to be committed for %s-%d, but none found", minOffset, tp.Topic, tp.Partition,
	)

	require.GreaterOrEqual(
		tb, actual.Offset, minOffset, "expected committed offset >= %d for %s-%d, got %d", minOffset,
		tp.Topic, tp.Partition, actual.Offset,
	)
}

// AssertNoPendingCommits verifies that every CommitAsync call issued so far
// has already been flushed.
func (c *Client) AssertNoPendingCommits(tb testing.TB) {
	tb.Helper()

	require.Zero(tb, c.PendingCommitCount(), "expected no pending commits")
}

// AssertSubscribed verifies that the client is subscribed to the given topics.
func (c *Client) AssertSubscribed(tb testing.TB, topics ...string) {
	tb.Helper()

	subs := c.Subscriptions()
	subMap := make(map[string]bool)
	for _, s := range subs {
		subMap[s] = true
	}

	for _, topic := range topics {
		if !subMap[topic] {
			tb.Errorf("expected client to be subscribed to topic %q, but it is not", topic)
		}
	}
}

// AssertAssigned verifies that the given partitions are currently assigned.
func (c *Client) AssertAssigned(tb testing.TB, partitions ...kafka.TopicPartition) {
	tb.Helper()

	assigned := c.AssignedPartitions()
	assignedMap := make(map[kafka.TopicPartition]bool)
	for _, p := range assigned {
		assignedMap[p] = true
	}

	for _, p := range partitions {
		if !assignedMap[p] {
			tb.Errorf(
				"expected partition %s-%d to be assigned, but it is not",
				p.Topic, p.Partition,
			)
		}
	}
}

// AssertPaused verifies that the given partitions are currently paused.
func (c *Client) AssertPaused(tb testing.TB, partitions ...kafka.TopicPartition) {
	tb.Helper()

	paused := c.PausedPartitions()
	pausedMap := make(map[kafka.TopicPartition]bool)
	for _, p := range paused {
		pausedMap[p] = true
	}

	for _, p := range partitions {
		if !pausedMap[p] {
			tb.Errorf("expected partition %s-%d to be paused, but it is not", p.Topic, p.Partition)
		}
	}
}

// AssertNotPaused verifies that none of the given partitions are currently paused.
func (c *Client) AssertNotPaused(tb testing.TB, partitions ...kafka.TopicPartition) {
	tb.Helper()

	paused := c.PausedPartitions()
	pausedMap := make(map[kafka.TopicPartition]bool)
	for _, p := range paused {
		pausedMap[p] = true
	}

	for _, p := range partitions {
		if pausedMap[p] {
			tb.Errorf("expected partition %s-%d to not be paused, but it is", p.Topic, p.Partition)
		}
	}
}

// AssertClosed verifies that Close() was called.
func (c *Client) AssertClosed(tb testing.TB) {
	tb.Helper()

	require.True(tb, c.IsClosed(), "expected client to be closed")
}

// AssertNotClosed verifies that Close() was not called.
func (c *Client) AssertNotClosed(tb testing.TB) {
	tb.Helper()

	require.False(tb, c.IsClosed(), "expected client to not be closed, but it is")
}
