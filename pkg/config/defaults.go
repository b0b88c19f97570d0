package config

import "time"

const (
	// EventsProviderNone disables batch event publishing.
	EventsProviderNone = "none"

	// EventsProviderKafka publishes batch events to Kafka.
	EventsProviderKafka = "kafka"

	defaultMaxLineBytes    = 10 * 1024 * 1024
	defaultBatchSize       = 100
	defaultQueueSize       = 16
	defaultRefreshInterval = time.Second
	defaultServeListen     = ":8082"
	defaultEventsTopic     = "tally.batches"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Ingest: IngestConfig{
			MaxLineBytes: defaultMaxLineBytes,
		},
		Stream: StreamConfig{
			BatchSize:       defaultBatchSize,
			QueueSize:       defaultQueueSize,
			RefreshInterval: defaultRefreshInterval.String(),
		},
		Serve: ServeConfig{
			Listen: defaultServeListen,
		},
		Events: EventsConfig{
			Provider: EventsProviderNone,
			Topic:    defaultEventsTopic,
		},
	}
}
