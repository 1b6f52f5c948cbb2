package cmd

import (
	"errors"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"

	"github.com/cargo-actions/cargo-cache/internal/blobcache"
	"github.com/cargo-actions/cargo-cache/internal/cache"
	"github.com/cargo-actions/cargo-cache/internal/cargohome"
	"github.com/cargo-actions/cargo-cache/internal/config"
	"github.com/cargo-actions/cargo-cache/internal/logging"
	"github.com/cargo-actions/cargo-cache/internal/sidecar"
)

// newCoordinator wires a phase coordinator against the hosted Actions cache
// when the runner provides one, falling back to the local disk backend.
// The returned closer releases the disk backend's index.
func newCoordinator(cfg *config.Config) (*cache.Coordinator, func() error, error) {
	fs := afero.NewOsFs()
	closer := func() error { return nil }

	blob, err := newBlobCache(fs, cfg)
	if err != nil {
		return nil, nil, err
	}
	if disk, ok := blob.(*blobcache.Disk); ok {
		closer = disk.Close
	}

	store := sidecar.NewStore(fs, sidecar.Dir(xdg.Home))
	coordinator := cache.New(fs, blob, store, cargohome.Home(), logging.New("cache"))

	return coordinator, closer, nil
}

func newBlobCache(fs afero.Fs, cfg *config.Config) (blobcache.Cache, error) {
	actions, err := blobcache.NewActions(fs, logging.New("blobcache"))
	if err == nil {
		return actions, nil
	}
	if !errors.Is(err, blobcache.ErrNotConfigured) {
		return nil, err
	}

	dir := cfg.CacheDir
	if dir == "" {
		dir = filepath.Join(xdg.CacheHome, "github-rust-actions", "blob-cache")
	}

	return blobcache.OpenDisk(fs, dir)
}
