//go:build unit

package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nagyist/reactive-kafka/kafka"
	mockkafka "github.com/nagyist/reactive-kafka/kafka/mock"
	"github.com/stretchr/testify/require"
)

var errFailedCommit = errors.New("commit failed")

func startTestDriver(t *testing.T, client *mockkafka.Client, opts ...SettingsOption) *Driver {
	t.Helper()

	base := []SettingsOption{
		WithClientFactory(func() (kafka.Consumer, error) { return client, nil }),
		WithPollInterval(5 * time.Millisecond),
		WithPollTimeout(20 * time.Millisecond),
	}
	settings := NewSettings(append(base, opts...)...)

	d := NewDriver(settings)
	require.NoError(t, d.Start())
	t.Cleanup(
		func() {
			d.Stop()
			select {
			case <-d.Done():
			case <-time.After(2 * time.Second):
			}
		},
	)
	return d
}

func awaitRequest(t *testing.T, ch <-chan RequestResult) RequestResult {
	t.Helper()

	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for RequestResult")
		return RequestResult{}
	}
}

func awaitCommit(t *testing.T, ch <-chan CommitResult) CommitResult {
	t.Helper()

	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for CommitResult")
		return CommitResult{}
	}
}

func TestDriver_AssignThenRequestDeliversQueuedRecords(t *testing.T) {
	client := mockkafka.NewClient()
	t0 := kafka.TopicPartition{Topic: "orders", Partition: 0}
	t1 := kafka.TopicPartition{Topic: "orders", Partition: 1}

	d := startTestDriver(t, client)
	d.Assign([]kafka.TopicPartition{t0, t1})
	require.Eventually(
		t, func() bool { return len(client.AssignedPartitions()) == 2 }, 2*time.Second, 10*time.Millisecond,
	)

	client.QueueRecords("orders", 0, mockkafka.SimpleRecords("k0", "v0", "k1", "v1")...)

	requester := NewRequesterID()
	res := awaitRequest(t, d.RequestMessages(context.Background(), requester, []kafka.TopicPartition{t0}))

	require.NoError(t, res.Err)
	require.Len(t, res.Messages.Records, 2)
	require.Equal(t, "k0", string(res.Messages.Records[0].Key))
	require.Equal(t, "k1", string(res.Messages.Records[1].Key))

	// demand for t0 was consumed by delivery; both partitions go back to
	// paused since nothing is requesting them anymore.
	require.Eventually(
		t, func() bool {
			paused := client.PausedPartitions()
			return len(paused) == 2
		}, 2*time.Second, 10*time.Millisecond,
	)
}

func TestDriver_TwoRequestersShareOnePollCycle(t *testing.T) {
	client := mockkafka.NewClient()
	t0 := kafka.TopicPartition{Topic: "orders", Partition: 0}
	t1 := kafka.TopicPartition{Topic: "orders", Partition: 1}

	d := startTestDriver(t, client)
	d.Assign([]kafka.TopicPartition{t0, t1})
	require.Eventually(
		t, func() bool { return len(client.AssignedPartitions()) == 2 }, 2*time.Second, 10*time.Millisecond,
	)
	// the mock starts with nothing paused, so wait for a tick to pause both
	// partitions; otherwise the resumed check below could pass before either
	// request is handled.
	require.Eventually(
		t, func() bool { return len(client.PausedPartitions()) == 2 }, 2*time.Second, 10*time.Millisecond,
	)

	requesterA := NewRequesterID()
	requesterB := NewRequesterID()
	chA := d.RequestMessages(context.Background(), requesterA, []kafka.TopicPartition{t0})
	chB := d.RequestMessages(context.Background(), requesterB, []kafka.TopicPartition{t1})

	// Both requests must be registered before the records land, so the
	// scenario actually exercises one shared poll rather than two separate
	// ones.
	require.Eventually(
		t, func() bool {
			return len(client.PausedPartitions()) == 0
		}, 2*time.Second, 10*time.Millisecond, "both partitions should be resumed once demand is registered",
	)

	client.QueueRecords("orders", 0, mockkafka.SimpleRecord("a-key", "a-val"))
	client.QueueRecords("orders", 1, mockkafka.SimpleRecord("b-key", "b-val"))

	resA := awaitRequest(t, chA)
	resB := awaitRequest(t, chB)

	require.NoError(t, resA.Err)
	require.Len(t, resA.Messages.Records, 1)
	require.Equal(t, "a-key", string(resA.Messages.Records[0].Key))

	require.NoError(t, resB.Err)
	require.Len(t, resB.Messages.Records, 1)
	require.Equal(t, "b-key", string(resB.Messages.Records[0].Key))
}

func TestDriver_CommitHappyPath(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	d := startTestDriver(t, client)

	commitCh := d.Commit(map[kafka.TopicPartition]kafka.Offset{tp: {Offset: 42}})
	client.TriggerCommitDone()

	res := awaitCommit(t, commitCh)
	require.NoError(t, res.Err)
	require.Equal(t, int64(42), res.Offsets[tp].Offset.Offset)
	client.AssertCommittedOffset(t, tp, 42)

	// with the commit drained, Stop terminates without waiting.
	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not terminate after its only commit finished")
	}
}

func TestDriver_CommitFailurePropagatesToCaller(t *testing.T) {
	client := mockkafka.NewClient(mockkafka.WithCommitError(errFailedCommit))
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	d := startTestDriver(t, client)

	commitCh := d.Commit(map[kafka.TopicPartition]kafka.Offset{tp: {Offset: 7}})
	client.TriggerCommitDone()

	res := awaitCommit(t, commitCh)
	require.Error(t, res.Err)
	commitErr, ok := AsCommitError(res.Err)
	require.True(t, ok)
	require.ErrorIs(t, commitErr.Cause, errFailedCommit)

	// the driver survives a failed commit; it can still terminate cleanly.
	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not terminate after a failed commit")
	}
}

func TestDriver_GracefulStopDrainsPendingCommitBeforeTerminating(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	d := startTestDriver(t, client)

	commitCh := d.Commit(map[kafka.TopicPartition]kafka.Offset{tp: {Offset: 99}})
	d.Stop()

	// the commit hasn't been armed yet, so the driver must still be
	// stopping and rejecting new work rather than terminated.
	rejected := awaitRequest(t, d.RequestMessages(context.Background(), NewRequesterID(), []kafka.TopicPartition{tp}))
	require.ErrorIs(t, rejected.Err, ErrStopping)

	select {
	case <-d.Done():
		t.Fatal("driver terminated while a commit was still pending")
	case <-time.After(50 * time.Millisecond):
	}

	client.TriggerCommitDone()

	res := awaitCommit(t, commitCh)
	require.NoError(t, res.Err)

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not terminate once its pending commit drained")
	}
}

func TestDriver_AutoPausesNewlyAssignedPartitionsBeforeUserListener(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	var pausedWhenNotified bool
	listener := kafka.RebalanceListenerFuncs{
		OnAssignedFunc: func(partitions []kafka.TopicPartition) {
			pausedWhenNotified = len(client.PausedPartitions()) == len(partitions)
		},
	}

	d := startTestDriver(t, client)
	d.Subscribe([]string{"orders"}, listener)
	require.Eventually(
		t, func() bool { return len(client.Subscriptions()) == 1 }, 2*time.Second, 10*time.Millisecond,
	)

	client.TriggerAssign([]kafka.TopicPartition{tp})

	require.True(t, pausedWhenNotified, "partition must already be paused when the user's OnAssigned fires")
	client.AssertPaused(t, tp)

	// no requester has asked for this partition, so it must stay paused even
	// once records are available for it.
	client.QueueRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))
	require.Never(
		t, func() bool { return len(client.PausedPartitions()) == 0 }, 100*time.Millisecond, 10*time.Millisecond,
	)
}

func TestDriver_RequesterDeathPurgesRegistry(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	d := startTestDriver(t, client)
	d.Assign([]kafka.TopicPartition{tp})
	require.Eventually(
		t, func() bool { return len(client.AssignedPartitions()) == 1 }, 2*time.Second, 10*time.Millisecond,
	)
	// the mock starts with nothing paused; wait for a tick to pause tp so the
	// resumed check below only passes once the request is live.
	require.Eventually(
		t, func() bool { return len(client.PausedPartitions()) == 1 }, 2*time.Second, 10*time.Millisecond,
	)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := d.RequestMessages(ctx, NewRequesterID(), []kafka.TopicPartition{tp})

	require.Eventually(
		t, func() bool { return len(client.PausedPartitions()) == 0 }, 2*time.Second, 10*time.Millisecond,
		"partition should be resumed while the request is live",
	)

	cancel()

	require.Eventually(
		t, func() bool { return len(client.PausedPartitions()) == 1 }, 2*time.Second, 10*time.Millisecond,
		"partition should be paused again once the dead requester's demand is purged",
	)

	// the abandoned request never receives a reply; records queued after
	// death aren't delivered to it either.
	client.QueueRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))
	select {
	case <-resultCh:
		t.Fatal("a dead requester should never receive a RequestResult")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDriver_RecordsWithNoDemandIsFatal(t *testing.T) {
	client := mockkafka.NewClient()
	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}

	d := startTestDriver(t, client)
	d.Assign([]kafka.TopicPartition{tp})
	require.Eventually(
		t, func() bool { return len(client.AssignedPartitions()) == 1 }, 2*time.Second, 10*time.Millisecond,
	)

	// nothing ever requests tp, so the driver keeps it paused; a record
	// surfacing here can only mean the client ignored that pause.
	client.LeakRecords("orders", 0, mockkafka.SimpleRecord("k", "v"))

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not terminate on a record arriving with no pending demand")
	}
}

func TestDriver_UnexpectedPartitionRecordIsFatal(t *testing.T) {
	client := mockkafka.NewClient()
	wanted := kafka.TopicPartition{Topic: "orders", Partition: 0}
	unexpected := kafka.TopicPartition{Topic: "orders", Partition: 1}

	d := startTestDriver(t, client)
	d.Assign([]kafka.TopicPartition{wanted, unexpected})
	require.Eventually(
		t, func() bool { return len(client.AssignedPartitions()) == 2 }, 2*time.Second, 10*time.Millisecond,
	)

	// register demand for wanted only, so the poll cycle has something to
	// fetch — unexpected stays paused and out of the fetch set.
	requester := NewRequesterID()
	_ = d.RequestMessages(context.Background(), requester, []kafka.TopicPartition{wanted})
	require.Eventually(
		t, func() bool { return len(client.PausedPartitions()) == 1 }, 2*time.Second, 10*time.Millisecond,
	)

	// a record for unexpected leaks through even though it was never part of
	// the fetch set for this cycle.
	client.LeakRecords("orders", 1, mockkafka.SimpleRecord("k", "v"))

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not terminate on a record arriving for an unrequested partition")
	}
}
