// Package driver implements a single-threaded coordinator that owns one
// Kafka consumer client and multiplexes its cooperative polling, partition
// assignment, subscription, fetch-on-demand, and asynchronous offset
// commits across many independent downstream requesters. Every method on
// Driver only ever enqueues a message onto its mailbox; the actual work
// happens on the driver's own goroutine, started by Start.
package driver

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/nagyist/reactive-kafka/kafka"
	"github.com/nagyist/reactive-kafka/logger"
)

const mailboxCapacity = 64

// Driver is the mailbox-driven coordinator described in the package doc.
// Every field is touched only from the goroutine started by Start.
type Driver struct {
	settings Settings
	logger   logger.Logger

	client   kafka.Consumer
	registry *registry

	mailbox    chan driverMessage
	pollTicker *time.Ticker
	done       chan struct{}

	commitsInProgress int
	stopInProgress    bool
	terminated        bool
}

// NewDriver constructs a Driver bound to settings. The owned Kafka client is
// not created until Start runs.
func NewDriver(settings Settings) *Driver {
	log := settings.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	log = log.With("dispatcher", settings.Dispatcher)

	return &Driver{
		settings: settings,
		logger:   log,
		registry: newRegistry(),
		mailbox:  make(chan driverMessage, mailboxCapacity),
		done:     make(chan struct{}),
	}
}

// Start creates the owned Kafka client via the configured factory, installs
// the periodic poll ticker, and starts the driver's goroutine. It must be
// called exactly once.
func (d *Driver) Start() error {
	if d.settings.createClient == nil {
		return fmt.Errorf("driver: no client factory configured")
	}

	client, err := d.settings.createClient()
	if err != nil {
		return fmt.Errorf("driver: create kafka client: %w", err)
	}

	d.client = client
	d.pollTicker = time.NewTicker(d.settings.PollInterval)

	go d.run()
	return nil
}

// Done reports when the driver has fully terminated: the ticker is stopped
// and the client is closed.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Assign adds partitions to the client's manual assignment.
func (d *Driver) Assign(partitions []kafka.TopicPartition) {
	d.send(Assign{Partitions: partitions})
}

// AssignWithOffset assigns the given partitions and seeks each to its
// offset.
func (d *Driver) AssignWithOffset(offsets map[kafka.TopicPartition]int64) {
	d.send(AssignWithOffset{Offsets: offsets})
}

// Subscribe replaces the current topic subscription.
func (d *Driver) Subscribe(topics []string, listener kafka.RebalanceListener) {
	d.send(Subscribe{Topics: topics, Listener: listener})
}

// SubscribePattern replaces the current subscription with a regex pattern.
func (d *Driver) SubscribePattern(pattern *regexp.Regexp, listener kafka.RebalanceListener) {
	d.send(SubscribePattern{Pattern: pattern, Listener: listener})
}

// RequestMessages registers a one-shot demand for the given partitions on
// behalf of id. If ctx is non-nil, this requester's entries are purged
// automatically once ctx is done; only the ctx of id's first request is
// watched, and contexts passed with later requests from id are ignored until
// id has been purged. The returned channel receives one RequestResult for
// each poll cycle that delivers records for any of the requested partitions
// (partitions that produced nothing stay pending for a later cycle), or a
// single RequestResult carrying ErrStopping if the driver refuses the
// request. Nothing is sent once id's entries have been purged.
func (d *Driver) RequestMessages(ctx context.Context, id RequesterID, partitions []kafka.TopicPartition) <-chan RequestResult {
	reply := make(chan RequestResult, 1)
	d.send(RequestMessages{Requester: id, Partitions: partitions, Context: ctx, Reply: reply})
	return reply
}

// Commit issues an asynchronous offset commit. The returned channel receives
// exactly one CommitResult once the broker acknowledges (or the driver
// refuses the request because it is shutting down).
func (d *Driver) Commit(offsets map[kafka.TopicPartition]kafka.Offset) <-chan CommitResult {
	reply := make(chan CommitResult, 1)
	d.send(Commit{Offsets: offsets, Reply: reply})
	return reply
}

// Stop asks the driver to terminate. If commits are in flight it drains
// them first, rejecting new RequestMessages and Commit calls with
// ErrStopping in the meantime; Done closes once termination completes.
func (d *Driver) Stop() {
	d.send(Stop{})
}

// send enqueues msg, discarding it silently if the driver has already
// terminated rather than blocking forever on a full or abandoned mailbox.
func (d *Driver) send(msg driverMessage) {
	select {
	case d.mailbox <- msg:
	case <-d.done:
	}
}
