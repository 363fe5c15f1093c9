package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Daasin/upgrade/internal/catalog"
	"github.com/Daasin/upgrade/internal/release"
)

func newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Inspect release upgrade status",
	}
	cmd.AddCommand(newReleaseCheckCmd())
	return cmd
}

func newReleaseCheckCmd() *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report the next release and whether a build exists for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := &release.Resolver{
				Catalog:  &catalog.Client{BaseURL: cfg.CatalogURL, Log: log},
				Versions: release.OSRelease{},
				Arch:     release.Uname{},
				Log:      log,
			}
			status, err := resolver.Next(cmd.Context(), development)
			if err != nil {
				return err
			}

			if outputJSON {
				printStatusJSON(status)
			} else {
				printStatus(status)
			}

			// A missing or forbidden build is a definitive answer;
			// only catalog trouble is a failure.
			switch status.Build.Kind {
			case release.BuildAvailable, release.BuildBlacklisted:
				return nil
			default:
				return fmt.Errorf("build check for %s failed: %s", status.Next, status.Build)
			}
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "consider development-gated upgrade targets")
	return cmd
}

func printStatus(status release.Status) {
	fmt.Printf("Current release: %s", status.Current)
	if status.IsLTS {
		fmt.Printf(" (LTS)")
	}
	fmt.Println()
	fmt.Printf("Next release:    %s\n", status.Next)
	if status.Build.IsOk() {
		color.Green("Build:           %s", status.Build)
	} else {
		color.Yellow("Build:           %s", status.Build)
	}
}

func printStatusJSON(status release.Status) {
	out := struct {
		release.Status
		StatusCode int `json:"status_code"`
	}{Status: status, StatusCode: status.Build.StatusCode()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
