// Package proxyclient wires the flags and collaborators shared by the commands
// that talk to a running veneer proxy.
package proxyclient

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/veneer/pkg/catalog"
	"github.com/papercomputeco/veneer/pkg/client"
	"github.com/papercomputeco/veneer/pkg/config"
	"github.com/papercomputeco/veneer/pkg/metering"
)

// Flags is the registry of client flags.
var Flags = config.FlagSet{
	config.FlagProxyTarget: {
		Name:        "proxy-target",
		Shorthand:   "p",
		ViperKey:    "client.proxy_target",
		Description: "veneer proxy URL",
	},
	config.FlagClientToken: {
		Name:        "access-token",
		ViperKey:    "client.access_token",
		Description: "Bearer token presented to the proxy",
	},
	config.FlagPricingFile: {
		Name:        "pricing-file",
		ViperKey:    "client.pricing_file",
		Description: "JSON file of per-model price overrides",
	},
}

var flagKeys = []string{
	config.FlagProxyTarget,
	config.FlagClientToken,
	config.FlagPricingFile,
}

// Options are the resolved client settings.
type Options struct {
	ProxyTarget string
	AccessToken string
	PricingFile string
}

// AddFlags registers the client flags on cmd.
func (o *Options) AddFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, Flags, config.FlagProxyTarget, &o.ProxyTarget)
	config.AddStringFlag(cmd, Flags, config.FlagClientToken, &o.AccessToken)
	config.AddStringFlag(cmd, Flags, config.FlagPricingFile, &o.PricingFile)
}

// Resolve fills o from flags, VENEER_* environment variables, config.toml and
// defaults, in that order of precedence.
func (o *Options) Resolve(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, Flags, flagKeys)

	o.ProxyTarget = v.GetString("client.proxy_target")
	o.AccessToken = v.GetString("client.access_token")
	o.PricingFile = v.GetString("client.pricing_file")
	return nil
}

// NewClient creates a client for the configured proxy.
func (o *Options) NewClient(log *slog.Logger) (*client.Client, error) {
	c, err := client.New(client.Config{
		Target:      o.ProxyTarget,
		AccessToken: o.AccessToken,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	return c, nil
}

// NewCatalog creates a model catalog over c with the configured price
// overrides.
func (o *Options) NewCatalog(c *client.Client, log *slog.Logger) (*catalog.Catalog, error) {
	overrides, err := metering.LoadPricing(o.PricingFile)
	if err != nil {
		return nil, err
	}

	return catalog.New(catalog.Config{
		Lister:    c,
		Overrides: overrides,
		Logger:    log,
	}), nil
}
