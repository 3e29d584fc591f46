package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/genpause/internal/host"
	"github.com/Iron-Ham/genpause/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the pause coordinator with an operator console",
	Long: `Start the pause coordinator. On a terminal the interactive dashboard is
shown; otherwise, or with --plain, a line console reads commands from stdin.

Examples:
  # Run with the simulated world generator
  genpause run --demo

  # Force the line console and a collector family
  genpause run --plain --gc-family low-pause

  # Run without a console until interrupted
  genpause run --headless`,
	RunE: runRun,
}

var (
	runPlain    bool
	runHeadless bool
	runDemo     bool
	runGCFamily string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Use the line console even on a terminal")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without a console until interrupted")
	runCmd.Flags().BoolVar(&runDemo, "demo", false, "Run the simulated world generator")
	runCmd.Flags().StringVar(&runGCFamily, "gc-family", "", "Collector family hint (low-pause, regional, standard)")
}

func runRun(cmd *cobra.Command, args []string) error {
	mode := host.ConsoleAuto
	switch {
	case runHeadless:
		mode = host.ConsoleNone
	case runPlain:
		mode = host.ConsoleLine
	}

	h, err := host.New(host.Options{
		ConfigPath: cfgFile,
		GCFamily:   runGCFamily,
		Demo:       runDemo,
		Console:    mode,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer scheduler.Shutdown()
	return h.Run(ctx)
}
