package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/nagyist/reactive-kafka/kafka"
)

// commitDrainAttempts bounds the no-demand busy loop that drains in-flight
// commit callbacks: up to this many zero-timeout polls, spaced by
// commitDrainPause, before falling back to one longer poll. The cap keeps
// the mailbox responsive; any commit still pending completes on the next
// scheduled tick.
const (
	commitDrainAttempts   = 10
	commitDrainPause      = 10 * time.Microsecond
	commitDrainFinalPoll  = time.Millisecond
)

// poll is the heart of the driver: reconcile pause/resume against current
// demand, then either drain commit callbacks (no demand) or fetch and
// dispatch records (with demand).
func (d *Driver) poll() error {
	toFetch := d.registry.toFetch()
	d.reconcilePause(toFetch)

	var err error
	if len(toFetch) == 0 {
		err = d.pollNoDemand()
	} else {
		err = d.pollWithDemand(toFetch)
	}
	if err != nil {
		return err
	}

	if d.stopInProgress && d.commitsInProgress == 0 {
		d.terminated = true
	}
	return nil
}

// reconcilePause is the sole place pause/resume is applied: every currently
// assigned partition is resumed if it has a pending request, else paused.
func (d *Driver) reconcilePause(toFetch []kafka.TopicPartition) {
	fetchSet := toPartitionSet(toFetch)
	for _, p := range d.client.Assignment() {
		if _, wanted := fetchSet[p]; wanted {
			d.client.Resume(p)
		} else {
			d.client.Pause(p)
		}
	}
}

// pollNoDemand still drives the client so in-flight commit callbacks fire.
// Any record surfacing here means pausing failed — that's a driver bug, not
// a recoverable condition.
func (d *Driver) pollNoDemand() error {
	ctx := context.Background()

	if err := d.pollAndRejectRecords(ctx, 0); err != nil {
		return err
	}

	for i := 0; i < commitDrainAttempts && d.commitsInProgress > 0; i++ {
		time.Sleep(commitDrainPause)
		if err := d.pollAndRejectRecords(ctx, 0); err != nil {
			return err
		}
	}

	if d.commitsInProgress > 0 {
		if err := d.pollAndRejectRecords(ctx, commitDrainFinalPoll); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) pollAndRejectRecords(ctx context.Context, timeout time.Duration) error {
	records, err := d.client.Poll(ctx, timeout)
	if err != nil {
		return &ClientError{Op: "poll", Cause: err}
	}
	if len(records) > 0 {
		return &InvariantViolation{Detail: fmt.Sprintf("received %d record(s) with no pending demand", len(records))}
	}
	return nil
}

// pollWithDemand fetches once, validates every returned partition was
// actually requested, dispatches one Messages batch per requester, and
// clears the demand for every partition that produced records. Partitions
// that produced nothing remain pending for the next cycle.
func (d *Driver) pollWithDemand(toFetch []kafka.TopicPartition) error {
	records, err := d.client.Poll(context.Background(), d.settings.PollTimeout)
	if err != nil {
		return &ClientError{Op: "poll", Cause: err}
	}
	if len(records) == 0 {
		return nil
	}

	fetchSet := toPartitionSet(toFetch)
	byPartition := make(map[kafka.TopicPartition][]kafka.ConsumerRecord)
	for _, r := range records {
		tp := r.TopicPartition()
		if _, wanted := fetchSet[tp]; !wanted {
			return &InvariantViolation{Detail: fmt.Sprintf("received record for unrequested partition %s", tp)}
		}
		byPartition[tp] = append(byPartition[tp], r)
	}

	for reply, recs := range d.registry.groupByRequester(byPartition) {
		reply <- RequestResult{Messages: Messages{Records: recs}}
	}

	for tp := range byPartition {
		d.registry.remove(tp)
	}

	return nil
}

func toPartitionSet(partitions []kafka.TopicPartition) map[kafka.TopicPartition]struct{} {
	set := make(map[kafka.TopicPartition]struct{}, len(partitions))
	for _, p := range partitions {
		set[p] = struct{}{}
	}
	return set
}
