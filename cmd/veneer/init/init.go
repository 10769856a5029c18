// Package initcmder provides the init command for initializing a local .veneer
// directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/config"
)

const (
	dirName = ".veneer"
)

const initLongDesc string = `Initialize a new .veneer/ directory in the current working directory.

Creates a local .veneer/ directory that takes precedence over the default
~/.veneer/ directory for configuration, credentials, settings and the saved
chat transcript.

With --preset a config.toml is written for a known upstream:
  venice   the Venice API (default upstream)
  local    an OpenAI compatible server on localhost:11434

Examples:
  veneer init
  veneer init --preset local`

const initShortDesc string = "Initialize a local .veneer/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", fmt.Sprintf("Write config.toml for a preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(out io.Writer, preset string) error {
	var cfg *config.Config
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .veneer directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .veneer directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strings.ToLower(preset)),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	return nil
}
