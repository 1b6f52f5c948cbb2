package blobcache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack_RoundTrip(t *testing.T) {
	fs := afero.NewOsFs()
	dir := filepath.Join(t.TempDir(), "registry", "cache")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "index.crates.io"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.crates.io", "serde-1.0.0.crate"), []byte("crate bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644))

	var blob bytes.Buffer
	require.NoError(t, pack(fs, []string{dir}, &blob))

	// Wipe and restore in place.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, unpack(fs, &blob))

	data, err := os.ReadFile(filepath.Join(dir, "index.crates.io", "serde-1.0.0.crate"))
	require.NoError(t, err)
	assert.Equal(t, []byte("crate bytes"), data)

	data, err = os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), data)
}

func TestPackUnpack_MultiplePaths(t *testing.T) {
	fs := afero.NewOsFs()
	root := t.TempDir()

	first := filepath.Join(root, "first")
	second := filepath.Join(root, "second")
	require.NoError(t, os.MkdirAll(first, 0o755))
	require.NoError(t, os.MkdirAll(second, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(first, "a"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(second, "b"), []byte("b"), 0o644))

	var blob bytes.Buffer
	require.NoError(t, pack(fs, []string{first, second}, &blob))

	require.NoError(t, os.RemoveAll(first))
	require.NoError(t, os.RemoveAll(second))
	require.NoError(t, unpack(fs, &blob))

	assert.FileExists(t, filepath.Join(first, "a"))
	assert.FileExists(t, filepath.Join(second, "b"))
}

func TestPackUnpack_Symlink(t *testing.T) {
	fs := afero.NewOsFs()
	dir := filepath.Join(t.TempDir(), "git", "db")

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref"), 0o644))
	require.NoError(t, os.Symlink("HEAD", filepath.Join(dir, "link")))

	var blob bytes.Buffer
	require.NoError(t, pack(fs, []string{dir}, &blob))

	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, unpack(fs, &blob))

	target, err := os.Readlink(filepath.Join(dir, "link"))
	require.NoError(t, err)
	assert.Equal(t, "HEAD", target)
}

func TestPack_EmptyDirectoryPreserved(t *testing.T) {
	fs := afero.NewOsFs()
	dir := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var blob bytes.Buffer
	require.NoError(t, pack(fs, []string{dir}, &blob))

	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, unpack(fs, &blob))

	assert.DirExists(t, dir)
}
