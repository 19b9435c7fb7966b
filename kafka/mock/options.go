package mockkafka

import "github.com/nagyist/reactive-kafka/kafka"

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithPollError configures an error to be returned by all Poll calls.
func WithPollError(err error) Option {
	return func(c *Client) {
		c.pollErr = func() error { return err }
	}
}

// WithCommitError configures an error to be delivered to every flushed
// commit callback.
func WithCommitError(err error) Option {
	return func(c *Client) {
		c.commitErr = func() error { return err }
	}
}

// WithAssigned pre-assigns partitions at construction time, as if a prior
// Assign call had already run.
func WithAssigned(partitions ...kafka.TopicPartition) Option {
	return func(c *Client) {
		for _, p := range partitions {
			c.assigned[p] = struct{}{}
		}
	}
}
