package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/genpause/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify genpause configuration",
	Long: `View or modify genpause configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file. The rest of the file,
including comments, is kept. A running host picks the change up.

Examples:
  genpause config set max-players 5
  genpause config set memory-threshold 0.8
  genpause config set resources "overworld,nether*"
  genpause config set logging.level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a commented default config file at the selected config path.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var (
	configShowYAML bool
	configForce    bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().BoolVar(&configShowYAML, "yaml", false, "Print the configuration as YAML")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if configShowYAML {
		data, err := config.MarshalYAML(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	if store.Exists() {
		fmt.Fprintf(out, "Config file: %s\n\n", store.Path())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n\n")
	}

	v := store.Viper()
	for _, key := range config.Keys() {
		value := v.Get(key)
		if list, ok := value.([]string); ok {
			value = "[" + strings.Join(list, ", ") + "]"
		}
		fmt.Fprintf(out, "%-28s %v\n", key, value)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	store, _, err := openStore()
	if err != nil {
		return err
	}
	if err := store.SetString(key, value); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, store.Viper().Get(key))
	fmt.Fprintf(out, "Config saved to %s\n", store.Path())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	store := config.NewStore(cfgFile)
	if err := store.Init(configForce); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", store.Path())
	fmt.Fprintln(out, "Edit this file to customize genpause; a running host reloads it automatically.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	store := config.NewStore(cfgFile)
	out := cmd.OutOrStdout()

	if store.Exists() {
		fmt.Fprintf(out, "Active config: %s\n", store.Path())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", store.Path())
	}
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_MAX_PLAYERS, %s_LOGGING_LEVEL)\n",
		config.EnvPrefix, config.EnvPrefix, config.EnvPrefix)
	return nil
}
