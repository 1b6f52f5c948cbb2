// Package cargohome enumerates the cacheable segments of the Cargo home
// directory and resolves their locations on disk.
package cargohome

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cargo-actions/cargo-cache/internal/fingerprint"
)

// ErrUnknownSegment is returned when a cache-only token does not name a
// known segment.
var ErrUnknownSegment = fmt.Errorf("unknown cacheable item")

// Segment is one independently cached subtree of the Cargo home directory.
type Segment struct {
	// ShortName is the stable identifier used in file names and in the
	// cache-only input.
	ShortName string

	// FriendlyName is the human-readable label used in cache keys and logs.
	FriendlyName string

	// RelPath is the segment location relative to the Cargo home.
	RelPath []string

	// Ignores excludes entries from the segment fingerprint.
	Ignores fingerprint.Ignores
}

// Path returns the absolute segment directory under the given Cargo home.
func (s Segment) Path(home string) string {
	return filepath.Join(append([]string{home}, s.RelPath...)...)
}

// All returns every cacheable segment, in stable enumeration order. The set
// is total over the cacheable subtrees of the Cargo home and no segment path
// is nested inside another.
func All() []Segment {
	var indexIgnores fingerprint.Ignores
	indexIgnores.Add(1, ".last-updated")

	return []Segment{
		{
			ShortName:    "indices",
			FriendlyName: "Registry indices",
			RelPath:      []string{"registry", "index"},
			Ignores:      indexIgnores,
		},
		{
			ShortName:    "crates",
			FriendlyName: "Crate files",
			RelPath:      []string{"registry", "cache"},
		},
		{
			ShortName:    "git-repos",
			FriendlyName: "Git repositories",
			RelPath:      []string{"git", "db"},
		},
	}
}

// ByShortName looks up a segment by its short name.
func ByShortName(name string) (Segment, bool) {
	for _, segment := range All() {
		if segment.ShortName == name {
			return segment, true
		}
	}

	return Segment{}, false
}

// Select parses the cache-only input into a segment list. An empty input
// selects every segment. Otherwise the input is a whitespace-separated list
// of short names; duplicates are dropped and the result keeps the registry's
// enumeration order.
func Select(input string) ([]Segment, error) {
	tokens := strings.Fields(input)
	if len(tokens) == 0 {
		return All(), nil
	}

	wanted := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, ok := ByShortName(token); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSegment, token)
		}

		wanted[token] = struct{}{}
	}

	var selected []Segment
	for _, segment := range All() {
		if _, ok := wanted[segment.ShortName]; ok {
			selected = append(selected, segment)
		}
	}

	return selected, nil
}
