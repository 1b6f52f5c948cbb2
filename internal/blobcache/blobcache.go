// Package blobcache talks to the host's key-addressed blob storage. The
// engine only ever needs two operations: restore a blob by key (with
// prefix-matched fallbacks) and save a blob under a unique key.
//
// Two backends exist: the GitHub Actions cache service, used when the
// runner provides its credentials, and a local directory with a bbolt
// index for self-hosted runners and offline use.
package blobcache

import (
	"context"
	"errors"
)

// Entry describes one restore or save request.
type Entry struct {
	// Key is the primary cache key. Saves always use it verbatim;
	// restores try it first as an exact match.
	Key string

	// RestoreKeys are prefix-matched fallbacks tried in order when the
	// primary key misses. The newest blob whose key starts with the
	// fallback wins.
	RestoreKeys []string

	// Paths are the absolute directories covered by the blob.
	Paths []string
}

// Cache is the blob-cache collaborator.
type Cache interface {
	// Restore materializes the blob matching the entry onto disk and
	// returns the matched key, or "" when nothing matched.
	Restore(ctx context.Context, entry Entry) (string, error)

	// Save uploads the entry's paths under its primary key.
	Save(ctx context.Context, entry Entry) error
}

// ErrNotConfigured is returned when the Actions cache service credentials
// are absent from the environment.
var ErrNotConfigured = errors.New("actions cache service not configured")
