package fingerprint

// rule identifies a single directory entry by its name and its depth below
// the fingerprint root (root = 0, immediate children = 1).
type rule struct {
	depth int
	name  string
}

// Ignores is a set of (depth, name) rules excluding entries from a
// fingerprint. A matching entry is skipped along with its entire subtree.
type Ignores struct {
	rules map[rule]struct{}
}

// Add registers an entry name to ignore at the given depth.
func (i *Ignores) Add(depth int, name string) {
	if i.rules == nil {
		i.rules = make(map[rule]struct{})
	}
	i.rules[rule{depth: depth, name: name}] = struct{}{}
}

// Match reports whether an entry with the given name at the given depth
// should be excluded.
func (i Ignores) Match(depth int, name string) bool {
	_, ok := i.rules[rule{depth: depth, name: name}]
	return ok
}

// Len returns the number of rules in the set.
func (i Ignores) Len() int {
	return len(i.rules)
}
