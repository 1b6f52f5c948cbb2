package blobcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.etcd.io/bbolt"
)

const (
	// indexFile is the bbolt database holding blob metadata
	indexFile = "index.db"

	// bucketName is the bbolt bucket for blob records
	bucketName = "blobs"
)

// diskRecord is the indexed metadata for one stored blob.
type diskRecord struct {
	Key     string    `json:"key"`
	Blob    string    `json:"blob"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// Disk is a blob cache backed by a local directory: tar.gz blobs on disk
// and a bbolt index mapping cache keys to them. It implements the same
// match-exact-then-newest-prefix contract as the hosted service.
type Disk struct {
	fs   afero.Fs
	db   *bbolt.DB
	root string
	now  func() time.Time
}

// OpenDisk opens (or initializes) a disk cache rooted at dir.
func OpenDisk(fs afero.Fs, dir string) (*Disk, error) {
	if err := fs.MkdirAll(filepath.Join(dir, "blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, indexFile), 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Disk{
		fs:   fs,
		db:   db,
		root: dir,
		now:  time.Now,
	}, nil
}

// Close closes the index database.
func (d *Disk) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}

// Restore looks up the entry's primary key, then each restore key as a
// prefix preferring the newest record, and unpacks the matched blob.
func (d *Disk) Restore(ctx context.Context, entry Entry) (string, error) {
	record, err := d.lookup(entry)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	blob, err := d.fs.Open(filepath.Join(d.root, "blobs", record.Blob))
	if err != nil {
		return "", fmt.Errorf("failed to open blob for %s: %w", record.Key, err)
	}
	defer blob.Close()

	if err := unpack(d.fs, blob); err != nil {
		return "", fmt.Errorf("failed to unpack blob for %s: %w", record.Key, err)
	}

	return record.Key, nil
}

// Save archives the entry's paths and indexes the blob under the primary key.
func (d *Disk) Save(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blobName := blobFileName(entry.Key)
	blobPath := filepath.Join(d.root, "blobs", blobName)

	f, err := d.fs.Create(blobPath)
	if err != nil {
		return fmt.Errorf("failed to create blob file: %w", err)
	}

	if err := pack(d.fs, entry.Paths, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to finalize blob file: %w", err)
	}

	info, err := d.fs.Stat(blobPath)
	if err != nil {
		return fmt.Errorf("failed to stat blob file: %w", err)
	}

	record := diskRecord{
		Key:     entry.Key,
		Blob:    blobName,
		Size:    info.Size(),
		Created: d.now(),
	}

	err = d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}

		return b.Put([]byte(entry.Key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to index blob: %w", err)
	}

	return nil
}

// lookup returns the record for the entry, or nil on a miss.
func (d *Disk) lookup(entry Entry) (*diskRecord, error) {
	var match *diskRecord

	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		// Exact primary match first.
		if data := b.Get([]byte(entry.Key)); data != nil {
			var record diskRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			match = &record
			return nil
		}

		// Then each fallback as a prefix, newest record first.
		for _, prefixKey := range entry.RestoreKeys {
			prefix := []byte(prefixKey)
			c := b.Cursor()

			var newest *diskRecord
			for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
				var record diskRecord
				if err := json.Unmarshal(v, &record); err != nil {
					return err
				}
				if newest == nil || record.Created.After(newest.Created) {
					newest = &record
				}
			}

			if newest != nil {
				match = newest
				return nil
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query cache index: %w", err)
	}

	return match, nil
}

// blobFileName derives a filesystem-safe blob name from a cache key.
func blobFileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".tgz"
}
