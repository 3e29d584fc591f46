package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/genpause/internal/host"
	"github.com/Iron-Ham/genpause/internal/memory"
	"github.com/Iron-Ham/genpause/internal/reclaim"
	"github.com/Iron-Ham/genpause/internal/styles"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the detected runtime profile and current memory",
	Long: `Take one memory sample of this process, detect the runtime profile the
way a host would at startup, and show the configured thresholds and whether
a host is running.`,
	RunE: runStatus,
}

var statusGCFamily string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusGCFamily, "gc-family", "", "Collector family hint (low-pause, regional, standard)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}

	sampler := memory.NewRuntimeSampler(cfg.MemoryLimitBytes())
	snap := sampler.Sample()
	hint := cfg.GCFamily
	if statusGCFamily != "" {
		hint = statusGCFamily
	}
	profile := memory.DetectProfile(memory.EnvFromOS(hint), snap)
	th := cfg.Thresholds()

	out := cmd.OutOrStdout()
	row := func(label, value string) { fmt.Fprintln(out, styles.Row(label, value)) }

	fmt.Fprintln(out, styles.Title.Render("genpause"))
	row("Host", hostState(filepath.Join(filepath.Dir(store.Path()), host.LockFileName)))
	row("Config", store.Path())

	fmt.Fprintln(out)
	row("Runtime", profile.String())
	row("Strategy", reclaim.PlanFor(profile).String())
	ceiling := "none detected"
	if sampler.Ceiling() > 0 {
		ceiling = fmt.Sprintf("%s (%s)", memory.Bytes(sampler.Ceiling()).Humanized(), sampler.CeilingSource())
	}
	row("Ceiling", ceiling)
	row("Memory", styles.Ratio(snap.Ratio(), th.MemoryThreshold))
	row("Used", memory.Bytes(snap.UsedBytes).Humanized())
	row("Allocated", memory.Bytes(snap.AllocatedBytes).Humanized())

	fmt.Fprintln(out)
	maxUsers := strconv.Itoa(th.MaxUsers)
	if !th.PopulationLimited() {
		maxUsers = "unlimited"
	}
	row("Max users", maxUsers)
	row("Threshold", fmt.Sprintf("%.1f%% (resume below %.1f%%)", th.MemoryThreshold*100, th.RecoverBelow()*100))
	row("Check every", fmt.Sprintf("%gs", th.CheckInterval.Seconds()))
	row("Resume delay", fmt.Sprintf("%gs", th.ResumeDelay.Seconds()))
	row("Force paused", strconv.FormatBool(cfg.ForcePaused))
	row("Monitoring", strconv.FormatBool(cfg.MemoryMonitoringEnabled))
	return nil
}

func hostState(lockPath string) string {
	lock, err := host.ReadLock(lockPath)
	if err != nil || lock.PID == 0 {
		return styles.Muted.Render("not running")
	}
	return fmt.Sprintf("running (PID %d on %s since %s)", lock.PID, lock.Hostname, lock.StartedAt.Format("2006-01-02 15:04:05"))
}
