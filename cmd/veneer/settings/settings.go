// Package settingscmder provides the settings command for the chat and image
// generation defaults stored in the .veneer/ directory.
package settingscmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/pkg/cliui"
	"github.com/papercomputeco/veneer/pkg/settings"
)

const settingsLongDesc string = `Manage chat and image generation settings.

Settings are stored as settings.json in the .veneer/ directory. "veneer chat"
picks up changes to the file while it runs, so a setting changed from another
terminal applies to the next message.

Examples:
  veneer settings show
  veneer settings set chat.model qwen3-235b
  veneer settings set chat.temperature 0.3
  veneer settings set venice.enable_web_search auto
  veneer settings set chat.max_completion_tokens ""    Clear a setting`

const settingsShortDesc string = "Manage chat and image generation settings"

func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: settingsShortDesc,
		Long:  settingsLongDesc,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSetCmd())

	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runShow(cmd.OutOrStdout(), configDir)
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting; an empty value clears optional settings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd.OutOrStdout(), args[0], args[1], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return settings.Keys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}
}

func runShow(out io.Writer, configDir string) error {
	store, err := settings.NewFileStore(configDir, nil)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Settings file:"),
		cliui.DimStyle.Render(store.Path()),
	)

	current := store.Current()
	keys := settings.Keys()

	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	for _, key := range keys {
		value, err := current.Get(key)
		if err != nil {
			return err
		}

		padded := fmt.Sprintf("%-*s", width, key)
		if value == "" {
			fmt.Fprintf(out, "  %s  %s\n", cliui.KeyStyle.Render(padded), cliui.DimStyle.Render("<not set>"))
		} else {
			fmt.Fprintf(out, "  %s  %s\n", cliui.KeyStyle.Render(padded), cliui.ValueStyle.Render(value))
		}
	}
	fmt.Fprintln(out)

	return nil
}

func runSet(out io.Writer, key, value, configDir string) error {
	if !settings.IsValidKey(key) {
		return fmt.Errorf("unknown settings key: %q\n\nValid keys: %s",
			key, strings.Join(settings.Keys(), ", "))
	}

	store, err := settings.NewFileStore(configDir, nil)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if err := store.Set(key, value); err != nil {
		return err
	}

	if value == "" {
		fmt.Fprintf(out, "\n  %s Cleared %s\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(key))
		return nil
	}

	fmt.Fprintf(out, "\n  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
