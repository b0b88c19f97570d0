package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/tally/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the TALLY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (TALLY_STREAM_BATCH_SIZE, TALLY_SERVE_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: TALLY_STREAM_BATCH_SIZE, TALLY_EVENTS_BROKERS, etc.
	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Ingest
	v.SetDefault("ingest.max_line_bytes", d.Ingest.MaxLineBytes)

	// Stream
	v.SetDefault("stream.batch_size", d.Stream.BatchSize)
	v.SetDefault("stream.queue_size", d.Stream.QueueSize)
	v.SetDefault("stream.refresh_interval", d.Stream.RefreshInterval)

	// Pricing
	v.SetDefault("pricing.path", d.Pricing.Path)

	// Serve
	v.SetDefault("serve.listen", d.Serve.Listen)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}

// FromViper reads the resolved settings back into a Config. Brokers may be
// given as a TOML array or, from the environment, as a comma separated list.
func FromViper(v *viper.Viper) *Config {
	brokers := v.GetStringSlice("events.brokers")
	switch len(brokers) {
	case 0:
		brokers = nil
	case 1:
		brokers = SplitList(brokers[0])
	}

	cfg := &Config{
		Version: v.GetInt("version"),
		Ingest: IngestConfig{
			MaxLineBytes: v.GetUint("ingest.max_line_bytes"),
		},
		Stream: StreamConfig{
			BatchSize:       v.GetUint("stream.batch_size"),
			QueueSize:       v.GetUint("stream.queue_size"),
			RefreshInterval: v.GetString("stream.refresh_interval"),
		},
		Pricing: PricingConfig{
			Path: v.GetString("pricing.path"),
		},
		Serve: ServeConfig{
			Listen: v.GetString("serve.listen"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  brokers,
			Topic:    v.GetString("events.topic"),
		},
	}
	applyDefaults(cfg)
	return cfg
}
