// Package tallycmder
package tallycmder

import (
	"github.com/spf13/cobra"

	analyzecmder "github.com/papercomputeco/tally/cmd/tally/analyze"
	configcmder "github.com/papercomputeco/tally/cmd/tally/config"
	initcmder "github.com/papercomputeco/tally/cmd/tally/init"
	servecmder "github.com/papercomputeco/tally/cmd/tally/serve"
	streamcmder "github.com/papercomputeco/tally/cmd/tally/stream"
	watchcmder "github.com/papercomputeco/tally/cmd/tally/watch"
	versioncmder "github.com/papercomputeco/tally/cmd/version"
)

const tallyLongDesc string = `Tally analyzes logs of AI assistant interactions.

Read a newline delimited JSON log and report sessions, tool usage,
token volume, costs and activity:
  tally analyze <log>    Analyze a whole log at once
  tally stream <log>     Analyze a log in batches, printing one result per batch
  tally watch <log>      Follow a log in a live terminal dashboard
  tally serve <log>      Serve the running analysis over HTTP and MCP`

const tallyShortDesc string = "Tally - AI assistant interaction analytics"

func NewTallyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tally",
		Short:        tallyShortDesc,
		Long:         tallyLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.tally or ~/.tally)")

	// Add subcommands
	cmd.AddCommand(analyzecmder.NewAnalyzeCmd())
	cmd.AddCommand(streamcmder.NewStreamCmd())
	cmd.AddCommand(watchcmder.NewWatchCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
