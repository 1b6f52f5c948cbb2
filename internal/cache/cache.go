// Package cache drives the restore and save phases over the cacheable
// segments of the Cargo home.
//
// The two phases run as separate process invocations, coupled only through
// the sidecar records written at restore time. Restore unconditionally
// clears each segment directory before asking the blob cache to fill it,
// then snapshots the result; save recomputes the snapshot and uploads only
// the segments whose fingerprint moved.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/cargo-actions/cargo-cache/internal/blobcache"
	"github.com/cargo-actions/cargo-cache/internal/cargohome"
	"github.com/cargo-actions/cargo-cache/internal/fingerprint"
	"github.com/cargo-actions/cargo-cache/internal/sidecar"
)

// ErrPathMismatch is returned when a segment path changed between the
// restore and save phases.
var ErrPathMismatch = errors.New("cached folder path changed")

// Coordinator runs the two cache phases for a fixed Cargo home.
type Coordinator struct {
	fs    afero.Fs
	blob  blobcache.Cache
	store *sidecar.Store
	home  string
	log   zerolog.Logger
}

// New creates a coordinator. home is the resolved Cargo home; store holds
// the per-segment sidecar records.
func New(fs afero.Fs, blob blobcache.Cache, store *sidecar.Store, home string, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		fs:    fs,
		blob:  blob,
		store: store,
		home:  home,
		log:   log,
	}
}

// Restore runs the restore phase over the segments in order: clear the
// segment directory, ask the blob cache for the newest blob, fingerprint
// whatever is now on disk and persist the sidecar snapshot. Any failure is
// fatal for the phase.
func (c *Coordinator) Restore(ctx context.Context, segments []cargohome.Segment) error {
	for _, segment := range segments {
		if err := c.restoreSegment(ctx, segment); err != nil {
			return fmt.Errorf("failed to restore %s: %w", segment.FriendlyName, err)
		}
	}

	return nil
}

func (c *Coordinator) restoreSegment(ctx context.Context, segment cargohome.Segment) error {
	folderPath := segment.Path(c.home)

	exists, err := afero.Exists(c.fs, folderPath)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", folderPath, err)
	}
	if exists {
		c.log.Warn().
			Str("path", folderPath).
			Msg("Cache action will delete existing contents of this folder. " +
				"To avoid this warning, place this action earlier or delete the folder before running it.")
		if err := c.fs.RemoveAll(folderPath); err != nil {
			return fmt.Errorf("failed to clear %s: %w", folderPath, err)
		}
	}

	key, err := NewKey(segment.FriendlyName)
	if err != nil {
		return err
	}

	matched, err := c.blob.Restore(ctx, blobcache.Entry{
		Key:         key.Primary,
		RestoreKeys: []string{key.RestoreFallback},
		Paths:       []string{folderPath},
	})
	if err != nil {
		return fmt.Errorf("blob cache restore failed: %w", err)
	}

	if matched != "" {
		c.log.Info().
			Str("segment", segment.FriendlyName).
			Str("key", matched).
			Msg("Restored from cache")
	} else {
		c.log.Info().
			Str("segment", segment.FriendlyName).
			Msg("No existing cache entry found")
		if err := c.fs.MkdirAll(folderPath, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", folderPath, err)
		}
	}

	digest, err := fingerprint.Directory(c.fs, folderPath, segment.Ignores)
	if err != nil {
		return err
	}

	return c.store.Write(segment.ShortName, sidecar.FolderInfo{
		Path:        folderPath,
		Fingerprint: digest,
	})
}

// Save runs the save phase over the segments in order. A missing sidecar or
// a segment path that moved since restore is fatal; a failed upload is
// logged and the remaining segments are still processed.
func (c *Coordinator) Save(ctx context.Context, segments []cargohome.Segment) error {
	for _, segment := range segments {
		if err := c.saveSegment(ctx, segment); err != nil {
			return fmt.Errorf("failed to save %s: %w", segment.FriendlyName, err)
		}
	}

	return nil
}

func (c *Coordinator) saveSegment(ctx context.Context, segment cargohome.Segment) error {
	folderPath := segment.Path(c.home)

	digest, err := fingerprint.Directory(c.fs, folderPath, segment.Ignores)
	if err != nil {
		return err
	}

	old, err := c.store.Read(segment.ShortName)
	if err != nil {
		if errors.Is(err, sidecar.ErrMissing) {
			return fmt.Errorf("%w; was the restore phase run in this job?", err)
		}
		return err
	}

	// Byte-exact comparison on the canonical restore-time path. Symlinks
	// are deliberately not resolved here; what matters is that the
	// resolution did not change between phases.
	if old.Path != folderPath {
		return fmt.Errorf("%w from %s to %s; perhaps CARGO_HOME changed?",
			ErrPathMismatch, old.Path, folderPath)
	}

	if old.Fingerprint == digest {
		c.log.Info().
			Str("segment", segment.FriendlyName).
			Str("path", folderPath).
			Msg("Unchanged, no need to write to cache")
		return nil
	}

	c.log.Info().
		Str("segment", segment.FriendlyName).
		Uint64("old", old.Fingerprint).
		Uint64("new", digest).
		Msg("Fingerprint changed")

	key, err := NewKey(segment.FriendlyName)
	if err != nil {
		return err
	}

	err = c.blob.Save(ctx, blobcache.Entry{
		Key:   key.Primary,
		Paths: []string{folderPath},
	})
	if err != nil {
		// Contained: remaining segments should still be saved.
		c.log.Error().
			Err(err).
			Str("segment", segment.FriendlyName).
			Msg("Failed to save to cache")
		return nil
	}

	c.log.Info().
		Str("segment", segment.FriendlyName).
		Str("key", key.Primary).
		Msg("Saved to cache")

	return nil
}
