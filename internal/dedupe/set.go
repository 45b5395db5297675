package dedupe

import "sort"

// Set is the grow-only set of content hashes that have already been
// transformed. It is not safe for concurrent use.
type Set struct {
	items map[string]struct{}
}

// NewSet builds a set holding the given hashes.
func NewSet(hashes ...string) *Set {
	s := &Set{items: make(map[string]struct{}, len(hashes))}
	for _, h := range hashes {
		s.items[h] = struct{}{}
	}
	return s
}

// IsSeen reports whether hash is in the set.
func (s *Set) IsSeen(hash string) bool {
	_, ok := s.items[hash]
	return ok
}

// MarkSeen adds hash. It reports whether the hash was new.
func (s *Set) MarkSeen(hash string) bool {
	if _, ok := s.items[hash]; ok {
		return false
	}
	s.items[hash] = struct{}{}
	return true
}

// Len returns the number of hashes.
func (s *Set) Len() int {
	return len(s.items)
}

// Sorted returns the hashes in lexical order so persisted files are stable.
func (s *Set) Sorted() []string {
	out := make([]string, 0, len(s.items))
	for h := range s.items {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
