package blobcache

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
)

// pack writes a gzip-compressed tar stream covering every path. Entry names
// keep the absolute path (with the leading separator trimmed, as tar
// convention requires) so unpack can materialize the blob in place.
func pack(fs afero.Fs, paths []string, w io.Writer) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)

	for _, root := range paths {
		err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			return addEntry(fs, tw, path, info)
		})
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", root, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize compressed stream: %w", err)
	}

	return nil
}

func addEntry(fs afero.Fs, tw *tar.Writer, path string, info os.FileInfo) error {
	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		reader, ok := fs.(afero.LinkReader)
		if !ok {
			return fmt.Errorf("filesystem cannot read symlink %s", path)
		}

		target, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return fmt.Errorf("failed to read symlink %s: %w", path, err)
		}
		link = target
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", path, err)
	}
	header.Name = tarName(path)

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", path, err)
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}

	return nil
}

// unpack extracts a stream produced by pack, recreating the original
// absolute paths.
func unpack(fs afero.Fs, r io.Reader) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open compressed stream: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target := fromTarName(header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, os.FileMode(header.Mode)&os.ModePerm); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := extractFile(fs, tr, target, os.FileMode(header.Mode)&os.ModePerm); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linker, ok := fs.(afero.Linker)
			if !ok {
				return fmt.Errorf("filesystem cannot create symlink %s", target)
			}
			if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			if err := linker.SymlinkIfPossible(header.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", target, err)
			}
		default:
			// Device nodes and the like never appear in cargo state.
		}
	}
}

func extractFile(fs afero.Fs, r io.Reader, target string, mode os.FileMode) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	f, err := fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to extract %s: %w", target, err)
	}

	return nil
}

func tarName(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

func fromTarName(name string) string {
	return filepath.FromSlash("/" + name)
}
