package driver

import (
	"time"

	"github.com/nagyist/reactive-kafka/kafka"
	"github.com/nagyist/reactive-kafka/logger"
)

// Settings carries the immutable configuration bound to a Driver at
// construction time.
type Settings struct {
	// PollTimeout bounds each demand-driven poll call.
	PollTimeout time.Duration
	// PollInterval is the period of the internal poll ticker that drives
	// commit-callback progress and rebalance housekeeping even absent
	// external traffic.
	PollInterval time.Duration
	// Dispatcher names the scheduling domain the driver's goroutine runs
	// under; it carries no runtime behavior, only an identifier threaded
	// through logs for operators running several drivers side by side.
	Dispatcher string
	// Logger receives the driver's own structured log calls. Defaults to a
	// no-op sink.
	Logger logger.Logger

	createClient func() (kafka.Consumer, error)
}

func defaultSettings() Settings {
	return Settings{
		PollTimeout:  50 * time.Millisecond,
		PollInterval: 100 * time.Millisecond,
		Dispatcher:   "default",
		Logger:       logger.NewNoopLogger(),
	}
}

// SettingsOption configures a Settings value, in the functional-options
// style used throughout this module's Kafka client construction.
type SettingsOption func(*Settings)

// NewSettings builds Settings from the given options, defaulting PollTimeout
// to 50ms, PollInterval to 100ms, and Dispatcher to "default".
func NewSettings(opts ...SettingsOption) Settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func WithPollTimeout(d time.Duration) SettingsOption {
	return func(s *Settings) { s.PollTimeout = d }
}

func WithPollInterval(d time.Duration) SettingsOption {
	return func(s *Settings) { s.PollInterval = d }
}

func WithDispatcher(name string) SettingsOption {
	return func(s *Settings) { s.Dispatcher = name }
}

func WithLogger(l logger.Logger) SettingsOption {
	return func(s *Settings) { s.Logger = l.With("component", "driver") }
}

// WithClientFactory installs a custom factory for the owned Kafka consumer.
// Start calls this exactly once.
func WithClientFactory(factory func() (kafka.Consumer, error)) SettingsOption {
	return func(s *Settings) { s.createClient = factory }
}

// WithKafkaOptions is a convenience over WithClientFactory that builds the
// owned consumer via kafka.NewKgoClient with the given options.
func WithKafkaOptions(opts ...kafka.KgoOption) SettingsOption {
	return func(s *Settings) {
		s.createClient = func() (kafka.Consumer, error) {
			return kafka.NewKgoClient(opts...)
		}
	}
}
