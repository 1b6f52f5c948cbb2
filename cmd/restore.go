package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cargo-actions/cargo-cache/internal/config"
	"github.com/cargo-actions/cargo-cache/internal/logging"
)

var restoreCmd = &cobra.Command{
	Use:          "restore",
	Short:        "Restore the Cargo home from the blob cache",
	Long:         `Restores each selected segment of the Cargo home from the blob cache and snapshots it for the save phase. Run this at the start of the job, before any cargo invocation.`,
	RunE:         runRestore,
	SilenceUsage: true,
}

func runRestore(cmd *cobra.Command, args []string) error {
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

	return coordinator.Restore(cmd.Context(), cfg.Segments)
}
