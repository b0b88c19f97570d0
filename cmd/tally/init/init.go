// Package initcmder provides the init command for initializing a local .tally
// directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tally/pkg/config"
	"github.com/papercomputeco/tally/pkg/dotdir"
)

const fetchTimeout = 30 * time.Second

const initLongDesc string = `Initialize a new .tally/ directory in the current working directory.

Creates a local .tally/ directory that takes precedence over the default
~/.tally/ directory, and writes a config.toml into it. An existing
directory is left untouched unless --preset is given, in which case its
config.toml is replaced.

The preset is either a built-in name or an http(s) URL to fetch a
config.toml from:
  local    Defaults, no batch events
  kafka    Publish batch results to a Kafka broker on localhost:9092

Examples:
  tally init
  tally init --preset kafka
  tally init --preset https://example.com/team/tally.toml`

const initShortDesc string = "Initialize a local .tally/ directory"

type InitCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &InitCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Preset name (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *InitCommander) run(ctx context.Context) error {
	var cfg *config.Config
	if c.preset != "" {
		var err error
		cfg, err = c.presetConfig(ctx)
		if err != nil {
			return err
		}
	}

	dir, existed, err := dotdir.NewManager().InitLocal()
	if err != nil {
		return fmt.Errorf("creating .tally directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	switch {
	case cfg != nil:
		if err := cfger.SaveConfig(cfg); err != nil {
			return err
		}
	case !existed:
		if err := cfger.SaveConfig(config.NewDefaultConfig()); err != nil {
			return err
		}
	default:
		fmt.Fprintf(c.out, "Already initialized: %s\n", dir)
		return nil
	}

	fmt.Fprintf(c.out, "Initialized .tally directory: %s\n", dir)
	return nil
}

func (c *InitCommander) presetConfig(ctx context.Context) (*config.Config, error) {
	if strings.HasPrefix(c.preset, "http://") || strings.HasPrefix(c.preset, "https://") {
		return fetchConfig(ctx, c.preset)
	}
	return config.PresetConfig(c.preset)
}

func fetchConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
