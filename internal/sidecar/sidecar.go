// Package sidecar persists the per-segment restore snapshot that the save
// phase compares against. The record is deliberately minimal: the segment
// path as restored and its fingerprint, nothing else.
package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// ErrMissing is returned by Read when no record exists for a segment.
var ErrMissing = errors.New("no cached folder info")

// FolderInfo is the persisted snapshot of one segment at restore time.
type FolderInfo struct {
	// Path is the absolute segment directory as computed during restore.
	Path string

	// Fingerprint is the segment content digest at restore time.
	Fingerprint uint64
}

// record is the on-disk form. TOML integers are signed 64-bit, so the
// fingerprint is stored as its decimal string to round-trip the full
// unsigned range.
type record struct {
	Path        string `toml:"path"`
	Fingerprint string `toml:"fingerprint"`
}

// Store reads and writes FolderInfo records, one file per segment.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore creates a store rooted at dir. For production use, Dir derives
// the conventional location under the user's home directory.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// Dir returns the conventional sidecar directory for a user home.
func Dir(userHome string) string {
	return filepath.Join(userHome, ".cache", "github-rust-actions", "cached_folder_info")
}

// Write persists the record for the segment with the given short name,
// creating parent directories as needed. The file is written to a temporary
// name and renamed into place so a concurrent reader never sees a torn
// record.
func (s *Store) Write(shortName string, info FolderInfo) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create sidecar directory: %w", err)
	}

	data, err := toml.Marshal(record{
		Path:        info.Path,
		Fingerprint: strconv.FormatUint(info.Fingerprint, 10),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize folder info: %w", err)
	}

	final := s.path(shortName)
	temp := final + ".tmp"
	if err := afero.WriteFile(s.fs, temp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write folder info: %w", err)
	}

	if err := s.fs.Rename(temp, final); err != nil {
		return fmt.Errorf("failed to finalize folder info: %w", err)
	}

	return nil
}

// Read loads the record for the segment with the given short name. A missing
// file yields ErrMissing; an unreadable or malformed file is an error of its
// own.
func (s *Store) Read(shortName string) (FolderInfo, error) {
	data, err := afero.ReadFile(s.fs, s.path(shortName))
	if err != nil {
		if os.IsNotExist(err) {
			return FolderInfo{}, fmt.Errorf("%w for %s", ErrMissing, shortName)
		}
		return FolderInfo{}, fmt.Errorf("failed to read folder info: %w", err)
	}

	var rec record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return FolderInfo{}, fmt.Errorf("failed to parse folder info: %w", err)
	}

	fingerprint, err := strconv.ParseUint(rec.Fingerprint, 10, 64)
	if err != nil {
		return FolderInfo{}, fmt.Errorf("failed to parse folder info fingerprint: %w", err)
	}

	return FolderInfo{Path: rec.Path, Fingerprint: fingerprint}, nil
}

func (s *Store) path(shortName string) string {
	return filepath.Join(s.dir, shortName+".toml")
}
