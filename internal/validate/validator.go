package validate

import (
	"sort"

	"github.com/ppiankov/hopqa/internal/model"
)

// MinDistinctSegments is the smallest evidence set a multi-hop question may cite
const MinDistinctSegments = 2

// DuplicateRefs returns the segment indices that appear more than once, in
// order of their first repeat. A nil result means the references are unique.
func DuplicateRefs(refs model.SegmentRefs) []int {
	seen := make(map[int]int, len(refs))
	var dups []int
	for _, r := range refs {
		seen[r]++
		if seen[r] == 2 {
			dups = append(dups, r)
		}
	}
	return dups
}

// DistinctCount returns the number of distinct segment indices
func DistinctCount(refs model.SegmentRefs) int {
	seen := make(map[int]struct{}, len(refs))
	for _, r := range refs {
		seen[r] = struct{}{}
	}
	return len(seen)
}

// EnoughDistinct reports whether refs cite at least MinDistinctSegments distinct segments
func EnoughDistinct(refs model.SegmentRefs) bool {
	return DistinctCount(refs) >= MinDistinctSegments
}

// MissingRefs returns, sorted and without repeats, the referenced indices that
// have no caption or an empty one.
func MissingRefs(refs model.SegmentRefs, captions map[int]string) []int {
	seen := make(map[int]bool)
	var missing []int
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		if text, ok := captions[r]; !ok || text == "" {
			missing = append(missing, r)
		}
	}
	sort.Ints(missing)
	return missing
}
