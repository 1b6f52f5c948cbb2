package cmd

import (
	"fmt"
	"os"

	"github.com/cargo-actions/cargo-cache/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:          "cargo-cache",
	Short:        "Cache the Cargo home between CI runs",
	Long:         `Caches the registry indices, downloaded crates and git checkouts of the Cargo home directory across CI jobs.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().String("cache-only", "", "Whitespace-separated segment short names to cache (indices, crates, git-repos)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Root directory for the local blob cache backend")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(runCmd)

	viper.SetDefault("cache-only", "")
	viper.SetDefault("verbose", false)
}
