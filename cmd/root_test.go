package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}

	assert.True(t, names["restore"])
	assert.True(t, names["save"])
	assert.True(t, names["run"])
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"cache-only", "cache-dir", "verbose"} {
		flag := rootCmd.PersistentFlags().Lookup(name)
		require.NotNilf(t, flag, "flag %s must be registered", name)
	}
}

func TestRunCommand_RequiresSubcommand(t *testing.T) {
	err := runCmd.Args(runCmd, []string{})
	assert.Error(t, err)

	err = runCmd.Args(runCmd, []string{"build"})
	assert.NoError(t, err)
}
