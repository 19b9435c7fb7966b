//go:build unit

package mockkafka_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nagyist/reactive-kafka/kafka"
	mockkafka "github.com/nagyist/reactive-kafka/kafka/mock"
	"github.com/stretchr/testify/require"
)

func TestMockClient_ImplementsInterface(t *testing.T) {
	var _ kafka.Consumer = (*mockkafka.Client)(nil)
}

func TestMockClient_AssignAndPoll(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	require.NoError(t, client.Assign([]kafka.TopicPartition{tp}))
	client.QueueRecords("orders", 0, mockkafka.SimpleRecords("k1", "v1", "k2", "v2")...)

	records, err := client.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, records, 2)
	client.AssertAssigned(t, tp)
}

func TestMockClient_PollReturnsNothingBeforeAssign(t *testing.T) {
	client := mockkafka.NewClient()
	client.QueueRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))

	records, err := client.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestMockClient_PausedPartitionYieldsNoRecords(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	require.NoError(t, client.Assign([]kafka.TopicPartition{tp}))
	client.QueueRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))
	client.Pause(tp)

	records, err := client.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Empty(t, records)
	client.AssertPaused(t, tp)

	client.Resume(tp)
	client.AssertNotPaused(t, tp)

	records, err = client.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestMockClient_AssignWithOffsetSeeks(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	client.QueueRecords(
		"orders", 0,
		mockkafka.Record("k0", "v0").WithOffset(0).Build(),
		mockkafka.Record("k1", "v1").WithOffset(1).Build(),
		mockkafka.Record("k2", "v2").WithOffset(2).Build(),
	)

	require.NoError(t, client.AssignWithOffset(map[kafka.TopicPartition]int64{tp: 2}))

	records, err := client.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, int64(2), records[0].Offset)
}

func TestMockClient_SubscribeAndTriggerAssign(t *testing.T) {
	client := mockkafka.NewClient()
	var assigned []kafka.TopicPartition

	listener := kafka.RebalanceListenerFuncs{
		OnAssignedFunc: func(partitions []kafka.TopicPartition) {
			assigned = partitions
		},
	}

	require.NoError(t, client.Subscribe([]string{"orders"}, listener))
	client.AssertSubscribed(t, "orders")

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	client.TriggerAssign([]kafka.TopicPartition{tp})

	require.Equal(t, []kafka.TopicPartition{tp}, assigned)
	client.AssertAssigned(t, tp)
}

func TestMockClient_TriggerRevoke(t *testing.T) {
	client := mockkafka.NewClient()
	var revoked []kafka.TopicPartition

	listener := kafka.RebalanceListenerFuncs{
		OnRevokedFunc: func(partitions []kafka.TopicPartition) {
			revoked = partitions
		},
	}

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	require.NoError(t, client.Subscribe([]string{"orders"}, listener))
	client.TriggerAssign([]kafka.TopicPartition{tp})
	client.TriggerRevoke([]kafka.TopicPartition{tp})

	require.Equal(t, []kafka.TopicPartition{tp}, revoked)
	require.Empty(t, client.AssignedPartitions())
}

func TestMockClient_CommitAsyncDoesNotFireSynchronously(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	var fired bool
	client.CommitAsync(
		context.Background(), map[kafka.TopicPartition]kafka.Offset{tp: {Offset: 5}},
		func(map[kafka.TopicPartition]kafka.Offset, error) { fired = true },
	)

	require.False(t, fired)
	require.Equal(t, 1, client.PendingCommitCount())

	client.TriggerCommitDone()
	require.False(t, fired, "arming must not fire the callback until the next Poll")

	_, err := client.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, fired)
	client.AssertCommittedOffset(t, tp, 5)
	client.AssertNoPendingCommits(t)
}

func TestMockClient_PollDoesNotFlushPendingCommitsOnItsOwn(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	var fired bool
	client.CommitAsync(
		context.Background(), map[kafka.TopicPartition]kafka.Offset{tp: {Offset: 3}},
		func(map[kafka.TopicPartition]kafka.Offset, error) { fired = true },
	)

	_, err := client.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.False(t, fired)
	require.Equal(t, 1, client.PendingCommitCount())
}

func TestMockClient_CommitError(t *testing.T) {
	client := mockkafka.NewClient(mockkafka.WithCommitError(errors.New("commit failed")))
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	var gotErr error
	client.CommitAsync(
		context.Background(), map[kafka.TopicPartition]kafka.Offset{tp: {Offset: 1}},
		func(_ map[kafka.TopicPartition]kafka.Offset, err error) { gotErr = err },
	)
	client.TriggerCommitDone()
	_, err := client.Poll(context.Background(), time.Second)
	require.NoError(t, err)

	require.Error(t, gotErr)
	_, ok := client.CommittedOffset(tp)
	require.False(t, ok)
}

func TestMockClient_PollError(t *testing.T) {
	client := mockkafka.NewClient(mockkafka.WithPollError(errors.New("poll failed")))

	_, err := client.Poll(context.Background(), time.Second)
	require.Error(t, err)
}

func TestMockClient_Close(t *testing.T) {
	client := mockkafka.NewClient()
	client.AssertNotClosed(t)

	client.Close()
	client.AssertClosed(t)
}
