package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargo-actions/cargo-cache/internal/blobcache"
	"github.com/cargo-actions/cargo-cache/internal/cargohome"
	"github.com/cargo-actions/cargo-cache/internal/sidecar"
)

// fakeBlob records calls and optionally materializes files on a hit or
// fails saves for selected key prefixes.
type fakeBlob struct {
	hitKey      string
	materialize map[string]string // relative path -> content, created under the restored path
	failSaves   map[string]bool   // restore fallback -> fail

	restoreCalls []blobcache.Entry
	saveCalls    []blobcache.Entry
}

func (f *fakeBlob) Restore(_ context.Context, entry blobcache.Entry) (string, error) {
	f.restoreCalls = append(f.restoreCalls, entry)

	if f.hitKey == "" {
		return "", nil
	}

	for rel, content := range f.materialize {
		path := filepath.Join(entry.Paths[0], filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
	}

	return f.hitKey, nil
}

func (f *fakeBlob) Save(_ context.Context, entry blobcache.Entry) error {
	f.saveCalls = append(f.saveCalls, entry)

	for prefix, fail := range f.failSaves {
		if fail && strings.HasPrefix(entry.Key, prefix) {
			return assert.AnError
		}
	}

	return nil
}

type fixture struct {
	coord *Coordinator
	blob  *fakeBlob
	home  string
	store *sidecar.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fs := afero.NewOsFs()
	blob := &fakeBlob{}
	home := filepath.Join(t.TempDir(), ".cargo")
	store := sidecar.NewStore(fs, filepath.Join(t.TempDir(), "cached_folder_info"))

	return &fixture{
		coord: New(fs, blob, store, home, zerolog.Nop()),
		blob:  blob,
		home:  home,
		store: store,
	}
}

func segments(t *testing.T, shortNames ...string) []cargohome.Segment {
	t.Helper()

	selected := make([]cargohome.Segment, 0, len(shortNames))
	for _, name := range shortNames {
		segment, ok := cargohome.ByShortName(name)
		require.True(t, ok)
		selected = append(selected, segment)
	}

	return selected
}

func TestRestore_FirstRunAllSegments(t *testing.T) {
	f := newFixture(t)
	all := segments(t, "indices", "crates", "git-repos")

	require.NoError(t, f.coord.Restore(context.Background(), all))

	require.Len(t, f.blob.restoreCalls, 3)
	for i, segment := range all {
		call := f.blob.restoreCalls[i]
		assert.True(t, strings.HasPrefix(call.Key, segment.FriendlyName+" - "))
		assert.Equal(t, []string{segment.FriendlyName}, call.RestoreKeys)
		assert.Equal(t, []string{segment.Path(f.home)}, call.Paths)

		// Cache miss: the folder was created and a sidecar written.
		assert.DirExists(t, segment.Path(f.home))
		info, err := f.store.Read(segment.ShortName)
		require.NoError(t, err)
		assert.Equal(t, segment.Path(f.home), info.Path)
	}
}

func TestRestore_ClearsExistingFolder(t *testing.T) {
	f := newFixture(t)
	indices := segments(t, "indices")

	stale := filepath.Join(indices[0].Path(f.home), "stale.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("leftover"), 0o644))

	require.NoError(t, f.coord.Restore(context.Background(), indices))

	assert.NoFileExists(t, stale, "restore must clear pre-existing contents")
}

func TestRestore_HitSnapshotsRestoredTree(t *testing.T) {
	f := newFixture(t)
	f.blob.hitKey = "Registry indices - prior-nonce"
	f.blob.materialize = map[string]string{"github.com/config.json": "{}"}
	indices := segments(t, "indices")

	require.NoError(t, f.coord.Restore(context.Background(), indices))

	info, err := f.store.Read("indices")
	require.NoError(t, err)
	assert.NotZero(t, info.Fingerprint, "snapshot covers the materialized files")

	// An immediate save sees the identical tree and skips the upload.
	require.NoError(t, f.coord.Save(context.Background(), indices))
	assert.Empty(t, f.blob.saveCalls)
}

func TestSave_UnchangedSkipsUpload(t *testing.T) {
	f := newFixture(t)
	crates := segments(t, "crates")

	require.NoError(t, f.coord.Restore(context.Background(), crates))
	require.NoError(t, f.coord.Save(context.Background(), crates))

	assert.Empty(t, f.blob.saveCalls, "identical fingerprint means zero uploads")
}

func TestSave_ChangedUploadsWithFreshNonce(t *testing.T) {
	f := newFixture(t)
	crates := segments(t, "crates")

	require.NoError(t, f.coord.Restore(context.Background(), crates))
	restoreKey := f.blob.restoreCalls[0].Key

	crateFile := filepath.Join(crates[0].Path(f.home), "serde-1.0.0.crate")
	require.NoError(t, os.WriteFile(crateFile, []byte("downloaded"), 0o644))

	require.NoError(t, f.coord.Save(context.Background(), crates))

	require.Len(t, f.blob.saveCalls, 1)
	saved := f.blob.saveCalls[0]
	assert.True(t, strings.HasPrefix(saved.Key, "Crate files - "))
	assert.NotEqual(t, restoreKey, saved.Key, "each upload gets a fresh nonce")
	assert.Equal(t, []string{crates[0].Path(f.home)}, saved.Paths)
}

func TestSave_IgnoredEntryDoesNotTriggerUpload(t *testing.T) {
	f := newFixture(t)
	indices := segments(t, "indices")

	require.NoError(t, f.coord.Restore(context.Background(), indices))

	// Only the ignored depth-1 stamp changes.
	stamp := filepath.Join(indices[0].Path(f.home), ".last-updated")
	require.NoError(t, os.WriteFile(stamp, []byte("now"), 0o644))

	require.NoError(t, f.coord.Save(context.Background(), indices))
	assert.Empty(t, f.blob.saveCalls)

	// Any other file still invalidates the segment.
	other := filepath.Join(indices[0].Path(f.home), "github.com")
	require.NoError(t, os.WriteFile(other, []byte("index data"), 0o644))

	require.NoError(t, f.coord.Save(context.Background(), indices))
	assert.Len(t, f.blob.saveCalls, 1)
}

func TestSave_PathMismatchIsFatal(t *testing.T) {
	f := newFixture(t)
	indices := segments(t, "indices")

	require.NoError(t, f.coord.Restore(context.Background(), indices))

	// Same sidecar store, different Cargo home: CARGO_HOME changed
	// between the phases.
	movedHome := filepath.Join(t.TempDir(), "opt", "cargo")
	moved := New(afero.NewOsFs(), f.blob, f.store, movedHome, zerolog.Nop())

	err := moved.Save(context.Background(), indices)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPathMismatch)
	assert.Contains(t, err.Error(), indices[0].Path(f.home))
	assert.Contains(t, err.Error(), indices[0].Path(movedHome))
	assert.Contains(t, err.Error(), "CARGO_HOME")
}

func TestSave_MissingSidecarIsFatal(t *testing.T) {
	f := newFixture(t)
	gitRepos := segments(t, "git-repos")

	err := f.coord.Save(context.Background(), gitRepos)
	require.Error(t, err)
	assert.ErrorIs(t, err, sidecar.ErrMissing)
	assert.Contains(t, err.Error(), "restore phase")
}

func TestSave_UploadFailureIsContained(t *testing.T) {
	f := newFixture(t)
	both := segments(t, "indices", "crates")

	require.NoError(t, f.coord.Restore(context.Background(), both))

	// Mutate both segments so both need an upload; the first one fails.
	require.NoError(t, os.WriteFile(filepath.Join(both[0].Path(f.home), "github.com"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(both[1].Path(f.home), "a.crate"), []byte("y"), 0o644))
	f.blob.failSaves = map[string]bool{"Registry indices": true}

	err := f.coord.Save(context.Background(), both)
	require.NoError(t, err, "upload failures must not abort the phase")
	assert.Len(t, f.blob.saveCalls, 2, "the second segment is still attempted")
}
