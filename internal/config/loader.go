package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from flags and the Actions runtime
type Loader struct{}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForPhase loads configuration for a restore or save invocation
func (l *Loader) LoadForPhase(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.bindActionInputs()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("cache-only", DefaultCacheOnly)
	viper.SetDefault("verbose", DefaultVerbose)
}

// bindActionInputs binds the workflow inputs the Actions runner exposes as
// INPUT_* environment variables
func (l *Loader) bindActionInputs() {
	// The runner uppercases input names verbatim, so `cache-only`
	// arrives as INPUT_CACHE-ONLY; the underscore spelling is accepted
	// for manual invocations.
	_ = viper.BindEnv("cache-only", "INPUT_CACHE-ONLY", "INPUT_CACHE_ONLY")
	_ = viper.BindEnv("cache-dir", "INPUT_CACHE-DIR", "INPUT_CACHE_DIR")
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("cache-only", cmd.Flags().Lookup("cache-only"))
	_ = viper.BindPFlag("cache-dir", cmd.Flags().Lookup("cache-dir"))
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
}
