package cli

import (
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Daasin/upgrade/internal/recovery"
)

func newRecoveryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Manage the recovery partition",
	}
	cmd.AddCommand(newRecoveryUpgradeCmd(), newDefaultBootCmd())
	return cmd
}

func newRecoveryUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the recovery partition from a new installer image",
	}
	cmd.AddCommand(newFromReleaseCmd(), newFromFileCmd())
	return cmd
}

func newFromReleaseCmd() *cobra.Command {
	var (
		version string
		arch    string
		next    bool
	)
	cmd := &cobra.Command{
		Use:   "from-release",
		Short: "Fetch the release ISO from the remote catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			up := recovery.New(cfg, log)
			up.Progress = downloadBar()
			if err := up.UpgradeFromRelease(cmd.Context(), version, arch, next); err != nil {
				color.Red("✗ recovery upgrade failed: %v", err)
				return err
			}
			color.Green("✓ upgrade of recovery partition was successful")
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "explicit release version (detected when empty)")
	cmd.Flags().StringVar(&arch, "arch", "", "explicit release architecture (detected when empty)")
	cmd.Flags().BoolVar(&next, "next", false, "target the next release instead of the current one")
	return cmd
}

func newFromFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "from-file PATH",
		Short: "Use an installer ISO that already exists on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up := recovery.New(cfg, log)
			if err := up.UpgradeFromFile(cmd.Context(), args[0]); err != nil {
				color.Red("✗ recovery upgrade failed: %v", err)
				return err
			}
			color.Green("✓ upgrade of recovery partition was successful")
			return nil
		},
	}
}

func newDefaultBootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default-boot",
		Short: "Make the recovery partition the default boot entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return recovery.New(cfg, log).DefaultBoot()
		},
	}
}

// downloadBar adapts the fetcher's progress callback onto a byte
// progress bar.
func downloadBar() func(done, total int64) {
	var bar *progressbar.ProgressBar
	return func(done, total int64) {
		if bar == nil {
			bar = progressbar.DefaultBytes(total, "ISO download")
		}
		_ = bar.Set64(done)
	}
}
