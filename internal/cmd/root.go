package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/genpause/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "genpause",
	Short: "Pause background world generation under memory or user pressure",
	Long: `genpause coordinates whether a resumable background workload runs or is
suspended. It pauses the workload when heap usage crosses a threshold, when
too many users are online, or on operator request, and resumes it once every
reason has cleared. Memory reclamation adapts to the detected Go runtime
profile and is rate-limited by a cooldown.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var cfgFile string

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/genpause/config.yaml)")
}

// openStore returns the store for the selected config file, loaded. A
// missing file yields defaults.
func openStore() (*config.Store, *config.Config, error) {
	store := config.NewStore(cfgFile)
	cfg, err := store.Load()
	if err != nil {
		return store, nil, err
	}
	return store, cfg, nil
}
