// Package fingerprint reduces a directory tree to a 64-bit digest.
//
// The digest covers entry names, entry types and file contents, but not
// permissions, ownership or modification times. This keeps fingerprints
// stable across machines with different umasks; a file whose contents are
// unchanged but whose executable bit toggled hashes the same.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// Entry type tags absorbed into the digest stream.
const (
	tagFile    = byte('f')
	tagDir     = byte('d')
	tagSymlink = byte('l')
	tagOther   = byte('o')
)

// Default size for the buffer used when hashing file contents
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O during hashing
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// Directory computes the fingerprint of the tree rooted at root, skipping
// entries matched by ignores. The walk is deterministic: entries of each
// directory are visited in lexicographic order of their raw byte names.
// A missing root is treated as an empty directory.
func Directory(fs afero.Fs, root string, ignores Ignores) (uint64, error) {
	digest := xxhash.New()

	if _, err := fs.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return digest.Sum64(), nil
		}
		return 0, fmt.Errorf("failed to stat %s: %w", root, err)
	}

	if err := walk(fs, digest, root, "", 1, ignores); err != nil {
		return 0, err
	}

	return digest.Sum64(), nil
}

// walk visits one directory level. dir is the absolute directory, rel its
// slash-separated path relative to the fingerprint root ("" for the root).
func walk(fs afero.Fs, digest *xxhash.Digest, dir, rel string, depth int, ignores Ignores) error {
	infos, err := readDirSorted(fs, dir)
	if err != nil {
		return err
	}

	for _, info := range infos {
		name := info.Name()
		if ignores.Match(depth, name) {
			continue
		}

		entryRel := name
		if rel != "" {
			entryRel = rel + "/" + name
		}
		entryAbs := filepath.Join(dir, name)

		digest.WriteString(entryRel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			digest.Write([]byte{tagSymlink})
		case info.IsDir():
			digest.Write([]byte{tagDir})
			if err := walk(fs, digest, entryAbs, entryRel, depth+1, ignores); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			digest.Write([]byte{tagFile})
			if err := hashFile(fs, digest, entryAbs, info.Size()); err != nil {
				return err
			}
		default:
			digest.Write([]byte{tagOther})
		}
	}

	return nil
}

// hashFile absorbs the file length followed by the file contents. The length
// is written as a fixed 8-byte value so files larger than 2 GiB cannot
// overflow the stream.
func hashFile(fs afero.Fs, digest *xxhash.Digest, file string, size int64) error {
	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], uint64(size))
	digest.Write(length[:])

	f, err := fs.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(digest, f, buffer); err != nil {
		return fmt.Errorf("failed to hash %s: %w", file, err)
	}

	return nil
}

// readDirSorted lists a directory without following symlinks, sorted by raw
// byte name. Filesystem-returned order is never trusted.
func readDirSorted(fs afero.Fs, dir string) ([]os.FileInfo, error) {
	f, err := fs.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory %s: %w", dir, err)
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	// Replace followed-symlink info where the filesystem supports Lstat
	if lstater, ok := fs.(afero.Lstater); ok {
		for idx, info := range infos {
			li, lstatCalled, err := lstater.LstatIfPossible(filepath.Join(dir, info.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to lstat %s: %w", info.Name(), err)
			}
			if lstatCalled {
				infos[idx] = li
			}
		}
	}

	sort.Slice(infos, func(a, b int) bool {
		return infos[a].Name() < infos[b].Name()
	})

	return infos, nil
}
