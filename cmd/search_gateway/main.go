// Command search-gateway serves and queries the search gateway.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/internal/logging"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search-gateway",
		Short: "Pluggable search-serving layer",
		Long: `search-gateway sits between callers and one or more search engines.

It applies query rules, dispatches every query variant to the backend of
each requested index, adjusts ranking, injects promotions and caches the
result.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("search-gateway version {{.Version}}\n")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML settings file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	return cmd
}

// loadSettings reads the settings named by --config and sets up logging.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.SetupDefault(settings.Logging)
	return settings, nil
}
