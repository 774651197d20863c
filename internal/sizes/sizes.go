// Package sizes implements the ordered, duplicate-free size set kept on
// every slot. The comma-joined string form exists only at the storage
// boundary; everything above it works with Set values.
package sizes

import "strings"

// Set is an ordered set of size labels. The zero value is empty and usable.
type Set struct {
	items []string
}

// Parse builds a Set from the persisted comma-joined representation.
// Entries are trimmed, empty entries and duplicates are dropped.
func Parse(raw string) Set {
	var s Set
	if strings.TrimSpace(raw) == "" {
		return s
	}
	for _, part := range strings.Split(raw, ",") {
		s.Add(strings.TrimSpace(part))
	}
	return s
}

// String serializes the set back to the comma-joined storage form.
func (s Set) String() string {
	return strings.Join(s.items, ",")
}

// Values returns the sizes in order. The returned slice is a copy.
func (s Set) Values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// Len reports the number of sizes in the set.
func (s Set) Len() int {
	return len(s.items)
}

// Contains reports whether size is present.
func (s Set) Contains(size string) bool {
	for _, item := range s.items {
		if item == size {
			return true
		}
	}
	return false
}

// Add appends size unless it is already present or empty.
// It reports whether the set changed.
func (s *Set) Add(size string) bool {
	size = strings.TrimSpace(size)
	if size == "" || s.Contains(size) {
		return false
	}
	s.items = append(s.items, size)
	return true
}

// Remove deletes size if present and reports whether the set changed.
// Removing an absent size is a no-op, not an error.
func (s *Set) Remove(size string) bool {
	size = strings.TrimSpace(size)
	for i, item := range s.items {
		if item == size {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}
