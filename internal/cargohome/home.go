package cargohome

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Home resolves the Cargo home directory the same way cargo itself does:
// the CARGO_HOME environment variable if set, otherwise ~/.cargo. Changing
// CARGO_HOME between the restore and save phases is the canonical cause of
// the path-mismatch failure in the save phase, so the resolution here must
// stay in lockstep with the toolchain's.
func Home() string {
	if home := os.Getenv("CARGO_HOME"); home != "" {
		return home
	}

	return filepath.Join(xdg.Home, ".cargo")
}
