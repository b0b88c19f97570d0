package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --batch-size
// on "tally stream", "tally watch" and "tally serve").
type Flag struct {
	// Name is the long flag name (e.g. "batch-size").
	Name string

	// Shorthand is the one-letter short flag (e.g. "b"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "stream.batch_size").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagMaxLineBytes   = "max-line-bytes"
	FlagBatchSize      = "batch-size"
	FlagQueueSize      = "queue-size"
	FlagRefresh        = "refresh"
	FlagPricing        = "pricing"
	FlagListen         = "listen"
	FlagEventsProvider = "events-provider"
	FlagBrokers        = "brokers"
	FlagTopic          = "topic"
)

// Flags is the registry shared by every tally command.
var Flags = FlagSet{
	FlagMaxLineBytes: {
		Name:        "max-line-bytes",
		ViperKey:    "ingest.max_line_bytes",
		Description: "Longest input line accepted, in bytes",
	},
	FlagBatchSize: {
		Name:        "batch-size",
		Shorthand:   "b",
		ViperKey:    "stream.batch_size",
		Description: "Records analyzed together per batch",
	},
	FlagQueueSize: {
		Name:        "queue-size",
		ViperKey:    "stream.queue_size",
		Description: "Batches buffered between a processor and its consumer",
	},
	FlagRefresh: {
		Name:        "refresh",
		ViperKey:    "stream.refresh_interval",
		Description: "How often the latest result is re-rendered (Go duration)",
	},
	FlagPricing: {
		Name:        "pricing",
		ViperKey:    "pricing.path",
		Description: "Pricing table override file (TOML or JSON); enables token cost estimates",
	},
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "serve.listen",
		Description: "Address for the API server to listen on",
	},
	FlagEventsProvider: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Batch event publisher (none, kafka)",
	},
	FlagBrokers: {
		Name:        "brokers",
		ViperKey:    "events.brokers",
		Description: "Comma separated Kafka broker addresses",
	},
	FlagTopic: {
		Name:        "topic",
		ViperKey:    "events.topic",
		Description: "Kafka topic for batch events",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintSliceFlag registers a repeatable uint flag on cmd from the given
// FlagSet, defaulting to the single configured value. Slice flags are not
// bound to viper.
func AddUintSliceFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *[]uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := []uint{defaultUint(def.ViperKey)}
	if def.Shorthand != "" {
		cmd.Flags().UintSliceVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintSliceVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// Resolve builds the effective Config for cmd. It reads the persistent
// --config-dir flag, layers the config file and environment with InitViper
// and binds the given registry flags on top.
func Resolve(cmd *cobra.Command, registryKeys ...string) (*Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := InitViper(configDir)
	if err != nil {
		return nil, err
	}
	BindRegisteredFlags(v, cmd, Flags, registryKeys)

	cfg := FromViper(v)
	if err := configKeys["stream.refresh_interval"].set(&Config{}, cfg.Stream.RefreshInterval); err != nil {
		return nil, err
	}
	if err := configKeys["events.provider"].set(&Config{}, cfg.Events.Provider); err != nil {
		return nil, err
	}
	return cfg, nil
}
