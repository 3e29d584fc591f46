package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/reclaim"
	"github.com/Iron-Ham/genpause/internal/styles"
)

var gcPlanCmd = &cobra.Command{
	Use:   "gc-plan",
	Short: "Show the reclamation strategy for every runtime profile",
	Long: `Print the reclamation strategy table. The row matching the profile this
process detects is marked.`,
	Args: cobra.NoArgs,
	RunE: runGCPlan,
}

var gcPlanFamily string

func init() {
	rootCmd.AddCommand(gcPlanCmd)

	gcPlanCmd.Flags().StringVar(&gcPlanFamily, "gc-family", "", "Collector family hint (low-pause, regional, standard)")
}

func runGCPlan(cmd *cobra.Command, args []string) error {
	_, cfg, err := openStore()
	if err != nil {
		return err
	}
	hint := cfg.GCFamily
	if gcPlanFamily != "" {
		hint = gcPlanFamily
	}
	sampler := memory.NewRuntimeSampler(cfg.MemoryLimitBytes())
	profile := memory.DetectProfile(memory.EnvFromOS(hint), sampler.Sample())

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Title.Render("Reclamation strategies"))
	fmt.Fprintf(out, "Detected: %s\n\n", profile)
	printTable(out, reclaim.Table(), profile)
	return nil
}

func printTable(w io.Writer, rows []reclaim.TableRow, current memory.Profile) {
	for _, r := range rows {
		marker := "  "
		if r.Profile == current {
			marker = styles.Primary.Render("> ")
		}
		fmt.Fprintf(w, "%s%-30s %s (budget %s)\n", marker, r.Profile.String(), r.Plan.String(), r.Plan.Budget())
	}
}
