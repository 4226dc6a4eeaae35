package ledger

import (
	"sort"

	"github.com/ppiankov/hopqa/internal/artifact"
)

// QuarantineSet holds the global review IDs flagged as leaking their answer.
// Once saved it is a checkpoint: later runs load it instead of re-auditing.
type QuarantineSet struct {
	ids map[int]struct{}
}

// NewQuarantineSet returns an empty set
func NewQuarantineSet() *QuarantineSet {
	return &QuarantineSet{ids: make(map[int]struct{})}
}

// Add inserts ids, ignoring duplicates
func (q *QuarantineSet) Add(ids ...int) {
	for _, id := range ids {
		q.ids[id] = struct{}{}
	}
}

// Contains reports whether id is quarantined
func (q *QuarantineSet) Contains(id int) bool {
	_, ok := q.ids[id]
	return ok
}

// Len returns the set size
func (q *QuarantineSet) Len() int {
	return len(q.ids)
}

// Sorted returns the IDs in ascending order
func (q *QuarantineSet) Sorted() []int {
	out := make([]int, 0, len(q.ids))
	for id := range q.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// LoadQuarantine reads a saved set (a JSON list of integers)
func LoadQuarantine(path string) (*QuarantineSet, error) {
	var ids []int
	if err := artifact.LoadJSON(path, &ids); err != nil {
		return nil, err
	}
	q := NewQuarantineSet()
	q.Add(ids...)
	return q, nil
}

// Save writes the set as a sorted JSON list
func (q *QuarantineSet) Save(path string) error {
	return artifact.SaveJSON(path, q.Sorted())
}
