package kafka

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/nagyist/reactive-kafka/logger"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/plugin/kzap"
	"go.uber.org/zap"
)

var _ Consumer = (*KgoClient)(nil)

// ClientConfig is the property bag passed to the client factory. Key/value
// deserializer names are carried through as metadata only — deserialization
// itself is out of scope for the driver, which only ever sees []byte.
type ClientConfig struct {
	BootstrapServers   []string
	GroupID            string
	KeyDeserializer    string
	ValueDeserializer  string
	SessionTimeout     time.Duration
	HeartbeatInterval  time.Duration
	MaxPollRecords     int
	ConsumeRegex       bool
	Logger             logger.Logger
}

func defaultConfig() ClientConfig {
	return ClientConfig{
		BootstrapServers:  []string{"localhost:9092"},
		GroupID:           "default-group",
		KeyDeserializer:   "bytes",
		ValueDeserializer: "bytes",
		SessionTimeout:    45 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		MaxPollRecords:    500,
		Logger:            logger.NewNoopLogger(),
	}
}

type KgoOption func(*ClientConfig)

func WithBootstrapServers(servers []string) KgoOption {
	return func(cfg *ClientConfig) { cfg.BootstrapServers = servers }
}

func WithGroupID(id string) KgoOption {
	return func(cfg *ClientConfig) { cfg.GroupID = id }
}

func WithDeserializers(key, value string) KgoOption {
	return func(cfg *ClientConfig) {
		cfg.KeyDeserializer = key
		cfg.ValueDeserializer = value
	}
}

func WithMaxPollRecords(n int) KgoOption {
	return func(cfg *ClientConfig) { cfg.MaxPollRecords = n }
}

// WithConsumeRegex switches the client into regex-subscription mode at
// construction time. franz-go resolves pattern subscriptions against topic
// metadata refreshes, which requires this to be a client-level toggle rather
// than something SubscribePattern can flip per call.
func WithConsumeRegex() KgoOption {
	return func(cfg *ClientConfig) { cfg.ConsumeRegex = true }
}

func WithLogger(l logger.Logger) KgoOption {
	return func(cfg *ClientConfig) {
		cfg.Logger = l.With("client", "kgo")
	}
}

// KgoClient is the franz-go-backed implementation of Consumer. It is the
// concrete "third-party client" the driver assumes: every method documented
// on Consumer maps to one or two franz-go calls, and KgoClient itself adds
// no buffering, retry, or thread-safety beyond what the embedded mutex needs
// to protect the fields touched from franz-go's own rebalance callback.
type KgoClient struct {
	client *kgo.Client
	config ClientConfig
	logger logger.Logger

	mu       sync.RWMutex
	topics   []string
	pattern  *regexp.Regexp
	listener RebalanceListener
	assigned map[TopicPartition]struct{}
}

func NewKgoClient(opts ...KgoOption) (*KgoClient, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	kc := &KgoClient{
		config:   cfg,
		logger:   cfg.Logger,
		assigned: make(map[TopicPartition]struct{}),
	}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(cfg.BootstrapServers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.OnPartitionsAssigned(kc.onAssigned),
		kgo.OnPartitionsRevoked(kc.onRevoked),
		kgo.WithLogger(kgoLoggerFor(cfg.Logger)),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.DisableAutoCommit(),
	}

	if cfg.ConsumeRegex {
		kgoOpts = append(kgoOpts, kgo.ConsumeRegex())
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("create kgo client: %w", err)
	}

	kc.client = client

	return kc, nil
}

// kgoLoggerFor prefers handing franz-go the real *zap.Logger behind a
// zaplogger.ZapLogger (via the kzap plugin, the way the franz-go ecosystem
// expects) and falls back to the generic kgo.Logger adapter for any other
// logger.Logger implementation.
func kgoLoggerFor(l logger.Logger) kgo.Logger {
	if z, ok := zapCore(l); ok {
		return kzap.New(z)
	}
	return newKgoLogger(l)
}

func zapCore(l logger.Logger) (*zap.Logger, bool) {
	type zapBacked interface{ Unwrap() *zap.Logger }
	type forwarding interface{ Unwrap() logger.Base }

	lw, ok := l.(*logger.LevelWrapper)
	if !ok {
		return nil, false
	}

	base := lw.Base
	for {
		if z, ok := base.(zapBacked); ok {
			return z.Unwrap(), true
		}
		f, ok := base.(forwarding)
		if !ok {
			return nil, false
		}
		base = f.Unwrap()
	}
}

func (k *KgoClient) onAssigned(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
	partitions := mapToTopicPartitions(assigned)

	k.mu.Lock()
	for _, p := range partitions {
		k.assigned[p] = struct{}{}
	}
	listener := k.listener
	k.mu.Unlock()

	if listener != nil {
		listener.OnAssigned(partitions)
	}
}

func (k *KgoClient) onRevoked(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
	partitions := mapToTopicPartitions(revoked)

	k.mu.Lock()
	for _, p := range partitions {
		delete(k.assigned, p)
	}
	listener := k.listener
	k.mu.Unlock()

	if listener != nil {
		listener.OnRevoked(partitions)
	}
}

func (k *KgoClient) Assign(partitions []TopicPartition) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	toAdd := make(map[string]map[int32]kgo.Offset)
	for _, p := range partitions {
		if _, already := k.assigned[p]; already {
			continue
		}
		if toAdd[p.Topic] == nil {
			toAdd[p.Topic] = make(map[int32]kgo.Offset)
		}
		toAdd[p.Topic][p.Partition] = kgo.NewOffset()
		k.assigned[p] = struct{}{}
	}

	if len(toAdd) == 0 {
		return nil
	}

	k.client.AddConsumePartitions(toAdd)
	return nil
}

func (k *KgoClient) AssignWithOffset(offsets map[TopicPartition]int64) error {
	partitions := make([]TopicPartition, 0, len(offsets))
	for tp := range offsets {
		partitions = append(partitions, tp)
	}

	if err := k.Assign(partitions); err != nil {
		return err
	}

	seek := make(map[string]map[int32]kgo.EpochOffset)
	for tp, offset := range offsets {
		if seek[tp.Topic] == nil {
			seek[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		seek[tp.Topic][tp.Partition] = kgo.EpochOffset{Offset: offset, Epoch: -1}
	}

	k.client.SetOffsets(seek)
	return nil
}

func (k *KgoClient) Subscribe(topics []string, listener RebalanceListener) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.topics) > 0 {
		k.client.PurgeTopicsFromConsuming(k.topics...)
	}

	k.topics = topics
	k.pattern = nil
	k.listener = listener
	k.client.AddConsumeTopics(topics...)

	return nil
}

func (k *KgoClient) SubscribePattern(pattern *regexp.Regexp, listener RebalanceListener) error {
	if !k.config.ConsumeRegex {
		return fmt.Errorf("client not constructed with WithConsumeRegex")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.topics) > 0 {
		k.client.PurgeTopicsFromConsuming(k.topics...)
	}

	k.topics = []string{pattern.String()}
	k.pattern = pattern
	k.listener = listener
	k.client.AddConsumeTopics(pattern.String())

	return nil
}

func (k *KgoClient) Pause(partitions ...TopicPartition) {
	k.client.PauseFetchPartitions(topicPartitionsToMap(partitions))
}

func (k *KgoClient) Resume(partitions ...TopicPartition) {
	k.client.ResumeFetchPartitions(topicPartitionsToMap(partitions))
}

func (k *KgoClient) Assignment() []TopicPartition {
	k.mu.RLock()
	defer k.mu.RUnlock()

	partitions := make([]TopicPartition, 0, len(k.assigned))
	for p := range k.assigned {
		partitions = append(partitions, p)
	}
	return partitions
}

func (k *KgoClient) Poll(ctx context.Context, timeout time.Duration) ([]ConsumerRecord, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := k.client.PollRecords(pctx, k.config.MaxPollRecords)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			if !errors.Is(err.Err, context.DeadlineExceeded) && !errors.Is(err.Err, context.Canceled) {
				return nil, fmt.Errorf("poll: %w", err.Err)
			}
		}
	}

	return convertRecords(fetches.Records()), nil
}

func (k *KgoClient) CommitAsync(ctx context.Context, offsets map[TopicPartition]Offset, onDone CommitCallback) {
	toCommit := make(map[string]map[int32]kgo.EpochOffset)
	for tp, offset := range offsets {
		if toCommit[tp.Topic] == nil {
			toCommit[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		toCommit[tp.Topic][tp.Partition] = kgo.EpochOffset{Offset: offset.Offset, Epoch: offset.LeaderEpoch}
	}

	k.client.CommitOffsets(
		ctx, toCommit, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
			onDone(offsets, err)
		},
	)
}

func (k *KgoClient) Close() {
	k.client.CloseAllowingRebalance()
}

func convertRecords(records []*kgo.Record) []ConsumerRecord {
	converted := make([]ConsumerRecord, len(records))
	for i, r := range records {
		converted[i] = ConsumerRecord{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			Key:         r.Key,
			Value:       r.Value,
			Headers:     convertFromKgoHeaders(r.Headers),
			Timestamp:   r.Timestamp,
			LeaderEpoch: r.LeaderEpoch,
		}
	}
	return converted
}

func convertFromKgoHeaders(headers []kgo.RecordHeader) []Header {
	converted := make([]Header, len(headers))
	for i, h := range headers {
		converted[i] = Header{Key: h.Key, Value: h.Value}
	}
	return converted
}

func topicPartitionsToMap(tps []TopicPartition) map[string][]int32 {
	m := make(map[string][]int32)
	for _, tp := range tps {
		m[tp.Topic] = append(m[tp.Topic], tp.Partition)
	}
	return m
}

func mapToTopicPartitions(m map[string][]int32) []TopicPartition {
	var tps []TopicPartition
	for topic, partitions := range m {
		for _, partition := range partitions {
			tps = append(tps, TopicPartition{Topic: topic, Partition: partition})
		}
	}
	return tps
}
