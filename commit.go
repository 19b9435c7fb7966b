package driver

import (
	"context"

	"github.com/nagyist/reactive-kafka/kafka"
)

// handleCommit issues the commit and increments commitsInProgress before
// CommitAsync returns. The callback fires from inside a later Poll call on
// this same goroutine — never concurrently with the rest of the driver — so
// decrementing the counter here needs no synchronization.
func (d *Driver) handleCommit(msg Commit) {
	d.commitsInProgress++

	d.client.CommitAsync(
		context.Background(), msg.Offsets, func(offsets map[kafka.TopicPartition]kafka.Offset, err error) {
			d.commitsInProgress--

			if err != nil {
				msg.Reply <- CommitResult{Err: &CommitError{Offsets: offsets, Cause: err}}
				return
			}

			committed := make(map[kafka.TopicPartition]kafka.OffsetAndMetadata, len(offsets))
			for tp, offset := range offsets {
				committed[tp] = kafka.OffsetAndMetadata{Offset: offset}
			}
			msg.Reply <- CommitResult{Offsets: committed}
		},
	)
}
