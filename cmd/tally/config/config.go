// Package configcmder provides the config command for managing persistent
// tally configuration stored in the .tally/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tally/pkg/cliui"
	"github.com/papercomputeco/tally/pkg/config"
)

const configLongDesc string = `Manage persistent tally configuration.

Configuration is stored as config.toml in the .tally/ directory and provides
default values for command flags. Environment variables (TALLY_STREAM_BATCH_SIZE,
TALLY_EVENTS_BROKERS, ...) override the file, and CLI flags override both.

Keys use dotted notation matching the TOML section structure:
  ingest.max_line_bytes,
  stream.batch_size, stream.queue_size, stream.refresh_interval,
  pricing.path, serve.listen,
  events.provider, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  tally config set <key> <value>    Set a configuration value
  tally config get <key>            Get a configuration value
  tally config list                 List all configuration values

Examples:
  tally config set stream.batch_size 500
  tally config set events.brokers localhost:9092,localhost:9093
  tally config get serve.listen
  tally config list`

const configShortDesc string = "Manage persistent tally configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, target string) {
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
