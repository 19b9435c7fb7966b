// Package mockkafka provides a deterministic, in-memory stand-in for
// kafka.Consumer used to drive the driver's test suite without a broker.
package mockkafka

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/nagyist/reactive-kafka/kafka"
)

var _ kafka.Consumer = (*Client)(nil)

type pendingCommit struct {
	offsets map[kafka.TopicPartition]kafka.Offset
	onDone  kafka.CommitCallback
}

// Client is a test double for kafka.Consumer. CommitAsync never fires its
// callback synchronously: commits queue in pendingCommits and stay pending
// through any number of Poll calls until a test arms them with
// TriggerCommitDone, at which point the very next Poll call fires them —
// mirroring how a real broker's commit acknowledgement surfaces only inside
// a later poll on the client's own thread, not on whatever goroutine
// observed the ack arrive.
type Client struct {
	mu sync.Mutex

	recordQueues   map[kafka.TopicPartition][]kafka.ConsumerRecord
	queuePositions map[kafka.TopicPartition]int

	assigned map[kafka.TopicPartition]struct{}
	paused   map[kafka.TopicPartition]struct{}

	topics   []string
	pattern  *regexp.Regexp
	listener kafka.RebalanceListener

	committedOffsets map[kafka.TopicPartition]kafka.Offset
	pendingCommits   []pendingCommit
	commitsArmed     bool

	leaked []kafka.ConsumerRecord

	pollErr   func() error
	commitErr func() error

	closed bool
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		recordQueues:     make(map[kafka.TopicPartition][]kafka.ConsumerRecord),
		queuePositions:   make(map[kafka.TopicPartition]int),
		assigned:         make(map[kafka.TopicPartition]struct{}),
		paused:           make(map[kafka.TopicPartition]struct{}),
		committedOffsets: make(map[kafka.TopicPartition]kafka.Offset),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Assign(partitions []kafka.TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range partitions {
		c.assigned[p] = struct{}{}
	}
	return nil
}

func (c *Client) AssignWithOffset(offsets map[kafka.TopicPartition]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tp, offset := range offsets {
		c.assigned[tp] = struct{}{}
		c.queuePositions[tp] = c.seekIndexLocked(tp, offset)
	}
	return nil
}

// seekIndexLocked finds the queue index of the first record at or after
// offset, so a subsequent Poll resumes exactly where AssignWithOffset asked.
func (c *Client) seekIndexLocked(tp kafka.TopicPartition, offset int64) int {
	queue := c.recordQueues[tp]
	for i, r := range queue {
		if r.Offset >= offset {
			return i
		}
	}
	return len(queue)
}

func (c *Client) Subscribe(topics []string, listener kafka.RebalanceListener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.topics = topics
	c.pattern = nil
	c.listener = listener
	return nil
}

func (c *Client) SubscribePattern(pattern *regexp.Regexp, listener kafka.RebalanceListener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.topics = []string{pattern.String()}
	c.pattern = pattern
	c.listener = listener
	return nil
}

func (c *Client) Pause(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range partitions {
		c.paused[p] = struct{}{}
	}
}

func (c *Client) Resume(partitions ...kafka.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range partitions {
		delete(c.paused, p)
	}
}

func (c *Client) Assignment() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	partitions := make([]kafka.TopicPartition, 0, len(c.assigned))
	for p := range c.assigned {
		partitions = append(partitions, p)
	}
	return partitions
}

func (c *Client) Poll(ctx context.Context, _ time.Duration) ([]kafka.ConsumerRecord, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pollErr != nil {
		if err := c.pollErr(); err != nil {
			return nil, err
		}
	}

	var records []kafka.ConsumerRecord
	for tp := range c.assigned {
		if _, isPaused := c.paused[tp]; isPaused {
			continue
		}

		queue := c.recordQueues[tp]
		pos := c.queuePositions[tp]
		if pos >= len(queue) {
			continue
		}

		records = append(records, queue[pos:]...)
		c.queuePositions[tp] = len(queue)
	}

	if len(c.leaked) > 0 {
		records = append(records, c.leaked...)
		c.leaked = nil
	}

	if c.commitsArmed {
		c.flushCommitsLocked()
		c.commitsArmed = false
	}

	return records, nil
}

func (c *Client) CommitAsync(_ context.Context, offsets map[kafka.TopicPartition]kafka.Offset, onDone kafka.CommitCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingCommits = append(c.pendingCommits, pendingCommit{offsets: offsets, onDone: onDone})
}

// flushCommitsLocked fires every queued commit callback. Must be called with
// mu held.
func (c *Client) flushCommitsLocked() {
	if len(c.pendingCommits) == 0 {
		return
	}

	pending := c.pendingCommits
	c.pendingCommits = nil

	var err error
	if c.commitErr != nil {
		err = c.commitErr()
	}

	for _, p := range pending {
		if err == nil {
			for tp, offset := range p.offsets {
				c.committedOffsets[tp] = offset
			}
		}
		p.onDone(p.offsets, err)
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

// TriggerAssign simulates a rebalance assigning partitions, invoking the
// registered listener outside the lock.
func (c *Client) TriggerAssign(partitions []kafka.TopicPartition) {
	c.mu.Lock()
	for _, p := range partitions {
		c.assigned[p] = struct{}{}
	}
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener.OnAssigned(partitions)
	}
}

// TriggerRevoke simulates a rebalance revoking partitions.
func (c *Client) TriggerRevoke(partitions []kafka.TopicPartition) {
	c.mu.Lock()
	for _, p := range partitions {
		delete(c.assigned, p)
		delete(c.paused, p)
	}
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener.OnRevoked(partitions)
	}
}

// TriggerCommitDone arms any commits queued by CommitAsync to fire on the
// next Poll call, mirroring how a real broker acknowledgement is only ever
// observed by the client thread that calls poll — never delivered directly
// to whatever goroutine is watching for it.
func (c *Client) TriggerCommitDone() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commitsArmed = true
}

// QueueRecords adds records to be returned by Poll for a specific
// topic-partition. Records are appended to any existing records for that
// partition.
func (c *Client) QueueRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tp := kafka.TopicPartition{Topic: topic, Partition: partition}
	for i := range records {
		records[i].Topic = topic
		records[i].Partition = partition
	}
	c.recordQueues[tp] = append(c.recordQueues[tp], records...)
}

// LeakRecords injects records that the next Poll call returns unconditionally
// — bypassing pause state and assignment entirely — for exercising the
// driver's InvariantViolation fatal paths, which a correctly paused real
// client should never trigger.
func (c *Client) LeakRecords(topic string, partition int32, records ...kafka.ConsumerRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range records {
		records[i].Topic = topic
		records[i].Partition = partition
	}
	c.leaked = append(c.leaked, records...)
}

// SetPollError configures an error to be returned on all Poll calls. Pass
// nil to clear it.
func (c *Client) SetPollError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.pollErr = nil
		return
	}
	c.pollErr = func() error { return err }
}

// SetCommitError configures an error to be delivered to the next flushed
// commit callbacks. Pass nil to clear it.
func (c *Client) SetCommitError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.commitErr = nil
		return
	}
	c.commitErr = func() error { return err }
}

func (c *Client) CommittedOffsets() map[kafka.TopicPartition]kafka.Offset {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[kafka.TopicPartition]kafka.Offset, len(c.committedOffsets))
	for k, v := range c.committedOffsets {
		result[k] = v
	}
	return result
}

func (c *Client) CommittedOffset(tp kafka.TopicPartition) (kafka.Offset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset, ok := c.committedOffsets[tp]
	return offset, ok
}

func (c *Client) AssignedPartitions() []kafka.TopicPartition {
	return c.Assignment()
}

func (c *Client) PausedPartitions() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()

	partitions := make([]kafka.TopicPartition, 0, len(c.paused))
	for p := range c.paused {
		partitions = append(partitions, p)
	}
	return partitions
}

func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]string, len(c.topics))
	copy(result, c.topics)
	return result
}

func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// PendingCommitCount reports how many CommitAsync calls are queued waiting
// for a flush, useful for asserting a commit hasn't completed yet.
func (c *Client) PendingCommitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pendingCommits)
}
