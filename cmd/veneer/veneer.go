// Package veneercmder
package veneercmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/veneer/cmd/veneer/auth"
	chatcmder "github.com/papercomputeco/veneer/cmd/veneer/chat"
	configcmder "github.com/papercomputeco/veneer/cmd/veneer/config"
	imagecmder "github.com/papercomputeco/veneer/cmd/veneer/image"
	initcmder "github.com/papercomputeco/veneer/cmd/veneer/init"
	modelscmder "github.com/papercomputeco/veneer/cmd/veneer/models"
	servecmder "github.com/papercomputeco/veneer/cmd/veneer/serve"
	settingscmder "github.com/papercomputeco/veneer/cmd/veneer/settings"
	statuscmder "github.com/papercomputeco/veneer/cmd/veneer/status"
	turnscmder "github.com/papercomputeco/veneer/cmd/veneer/turns"
	versioncmder "github.com/papercomputeco/veneer/cmd/veneer/version"
)

const veneerLongDesc string = `Veneer is a streaming chat and image client for the Venice API, with a
metering proxy in front of it.

Run the proxy, then talk through it:
  veneer init            Create a local .veneer/ directory
  veneer auth venice     Store the upstream API key
  veneer serve           Run the proxy
  veneer chat            Chat with a model through the proxy
  veneer image <prompt>  Generate an image through the proxy
  veneer models          List models and their prices
  veneer turns           List the turns the proxy recorded`

const veneerShortDesc string = "Veneer - streaming LLM client and metering proxy"

func NewVeneerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "veneer",
		Short:        veneerShortDesc,
		Long:         veneerLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .veneer/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(imagecmder.NewImageCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(settingscmder.NewSettingsCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(turnscmder.NewTurnsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
