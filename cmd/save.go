package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cargo-actions/cargo-cache/internal/config"
	"github.com/cargo-actions/cargo-cache/internal/logging"
)

var saveCmd = &cobra.Command{
	Use:          "save",
	Short:        "Save changed Cargo home segments to the blob cache",
	Long:         `Compares each selected segment against its restore-phase snapshot and uploads the segments the build changed. Run this at the end of the job.`,
	RunE:         runSave,
	SilenceUsage: true,
}

func runSave(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForPhase(cmd)
	if err != nil {
		return err
	}

	logging.Setup(cfg.Verbose)

	coordinator, closer, err := newCoordinator(cfg)
	if err != nil {
		return err
	}
	defer closer()

	return coordinator.Save(cmd.Context(), cfg.Segments)
}
