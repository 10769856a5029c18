// Package configcmder provides the config command for managing persistent
// veneer configuration stored in the .veneer/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent veneer configuration.

Configuration is stored as config.toml in the .veneer/ directory and provides
default values for command flags. CLI flags and VENEER_* environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, storage.postgres_dsn,
  proxy.upstream, proxy.listen, proxy.access_token, proxy.rate_limit, proxy.rate_burst,
  client.proxy_target, client.access_token, client.pricing_file,
  events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  veneer config set <key> <value>    Set a configuration value
  veneer config get <key>            Get a configuration value
  veneer config list                 List all configuration values

Examples:
  veneer config set proxy.upstream https://api.venice.ai/api/v1
  veneer config set storage.sqlite_path ./turns.db
  veneer config get client.proxy_target
  veneer config list`

const configShortDesc string = "Manage persistent veneer configuration"

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
