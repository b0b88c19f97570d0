package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent tally configuration stored as config.toml
// in the .tally/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Ingest  IngestConfig  `toml:"ingest"`
	Stream  StreamConfig  `toml:"stream"`
	Pricing PricingConfig `toml:"pricing"`
	Serve   ServeConfig   `toml:"serve"`
	Events  EventsConfig  `toml:"events"`
}

// IngestConfig holds line reader settings.
type IngestConfig struct {
	MaxLineBytes uint `toml:"max_line_bytes,omitempty"`
}

// StreamConfig holds streaming processor settings shared by stream, watch
// and serve.
type StreamConfig struct {
	BatchSize uint `toml:"batch_size,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`

	// RefreshInterval is a Go duration string such as "1s".
	RefreshInterval string `toml:"refresh_interval,omitempty"`
}

// PricingConfig points at an optional pricing table override file.
type PricingConfig struct {
	Path string `toml:"path,omitempty"`
}

// ServeConfig holds API server settings.
type ServeConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig holds batch event publishing settings. Provider is "none" or
// "kafka".
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"ingest.max_line_bytes": {
		get: func(c *Config) string { return formatUint(c.Ingest.MaxLineBytes) },
		set: func(c *Config, v string) error {
			return parseUint("ingest.max_line_bytes", v, &c.Ingest.MaxLineBytes)
		},
	},
	"stream.batch_size": {
		get: func(c *Config) string { return formatUint(c.Stream.BatchSize) },
		set: func(c *Config, v string) error {
			return parseUint("stream.batch_size", v, &c.Stream.BatchSize)
		},
	},
	"stream.queue_size": {
		get: func(c *Config) string { return formatUint(c.Stream.QueueSize) },
		set: func(c *Config, v string) error {
			return parseUint("stream.queue_size", v, &c.Stream.QueueSize)
		},
	},
	"stream.refresh_interval": {
		get: func(c *Config) string { return c.Stream.RefreshInterval },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for stream.refresh_interval: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for stream.refresh_interval: must be positive")
			}
			c.Stream.RefreshInterval = v
			return nil
		},
	},
	"pricing.path": {
		get: func(c *Config) string { return c.Pricing.Path },
		set: func(c *Config, v string) error { c.Pricing.Path = v; return nil },
	},
	"serve.listen": {
		get: func(c *Config) string { return c.Serve.Listen },
		set: func(c *Config, v string) error { c.Serve.Listen = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventsProviderNone, EventsProviderKafka:
				c.Events.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for events.provider: %q (available: %s, %s)",
					v, EventsProviderNone, EventsProviderKafka)
			}
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = SplitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

// RefreshDuration parses Stream.RefreshInterval, falling back to the default.
func (c *Config) RefreshDuration() time.Duration {
	d, err := time.ParseDuration(c.Stream.RefreshInterval)
	if err != nil || d <= 0 {
		return defaultRefreshInterval
	}
	return d
}

// SplitList splits a comma separated list and drops empty items.
func SplitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string, target *uint) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = uint(n)
	return nil
}
