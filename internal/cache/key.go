package cache

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// nonceBytes is the entropy of a primary key: 8 random bytes, enough to make
// collisions across runs astronomically unlikely.
const nonceBytes = 8

// Key is the pair of cache keys for one segment. The primary carries a
// fresh nonce so every upload lands under a unique key; the restore
// fallback is the bare friendly name, which the blob cache prefix-matches
// to find the newest blob from any prior run.
type Key struct {
	Primary         string
	RestoreFallback string
}

// NewKey builds the key pair for a segment's friendly name.
func NewKey(friendlyName string) (Key, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return Key{}, fmt.Errorf("failed to generate cache key nonce: %w", err)
	}

	return Key{
		Primary:         fmt.Sprintf("%s - %s", friendlyName, base64.RawURLEncoding.EncodeToString(nonce)),
		RestoreFallback: friendlyName,
	}, nil
}
