package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cargo-actions/cargo-cache/internal/cargo"
	"github.com/cargo-actions/cargo-cache/internal/logging"
)

var runCmd = &cobra.Command{
	Use:          "run <subcommand> [args...]",
	Short:        "Run a cargo subcommand",
	Long:         `Runs a cargo subcommand between the restore and save phases. Clippy diagnostics are emitted as workflow annotations.`,
	RunE:         runCargo,
	SilenceUsage: true,
	Args:         cobra.MinimumNArgs(1),
}

func runCargo(cmd *cobra.Command, args []string) error {
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
	logging.Setup(viper.GetBool("verbose"))

	c, err := cargo.FromEnvironment(logging.New("cargo"))
	if err != nil {
		return err
	}

	return c.Run(args[0], args[1:])
}
