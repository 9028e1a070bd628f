// Package configcmder provides the config command for managing persistent
// simstore configuration stored in the .simstore/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/simstore/pkg/cliui"
	"github.com/papercomputeco/simstore/pkg/config"
)

const configLongDesc string = `Manage persistent simstore configuration.

Configuration is stored as config.toml in the .simstore/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  vector_store.provider, vector_store.dim, vector_store.metric,
  vector_store.target, vector_store.namespace, vector_store.capacity,
  vector_store.workers, vector_store.thread_safe, vector_store.metrics,
  vector_store.events, api.listen, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  simstore config set <key> <value>    Set a configuration value
  simstore config get <key>            Get a configuration value
  simstore config list                 List all configuration values

Examples:
  simstore config set vector_store.provider pgvector
  simstore config set vector_store.dim 384
  simstore config get vector_store.metric
  simstore config list`

const configShortDesc string = "Manage persistent simstore configuration"

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

// printTarget reports which config file a subcommand operates on.
func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, joinKeys())
}
