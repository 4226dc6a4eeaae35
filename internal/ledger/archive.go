package ledger

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/ppiankov/hopqa/internal/artifact"
	"github.com/rotisserie/eris"
)

// ArchiveLedger is the append-only record of every candidate ever removed
// for leakage. Keys are decimal strings; a new entry always gets
// max(existing numeric key)+1, or 1 when the ledger is empty.
type ArchiveLedger struct {
	mu      sync.Mutex
	entries map[string]json.RawMessage
	next    int
}

// NewArchiveLedger returns an empty ledger
func NewArchiveLedger() *ArchiveLedger {
	return &ArchiveLedger{entries: make(map[string]json.RawMessage), next: 1}
}

// LoadArchive reads the ledger at path. A missing file yields an empty
// ledger. A legacy JSON list is upgraded to keys "0".."n-1".
func LoadArchive(path string) (*ArchiveLedger, error) {
	l := NewArchiveLedger()

	var raw json.RawMessage
	if err := artifact.LoadJSON(path, &raw); err != nil {
		if artifact.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	if err := l.UnmarshalJSON(raw); err != nil {
		return nil, eris.Wrapf(err, "archive %s", path)
	}
	return l, nil
}

// UnmarshalJSON accepts an object keyed by id or a legacy list
func (l *ArchiveLedger) UnmarshalJSON(data []byte) error {
	entries := make(map[string]json.RawMessage)

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return eris.Wrap(err, "decode legacy archive list")
		}
		for i, item := range list {
			entries[strconv.Itoa(i)] = item
		}
	default:
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return eris.Wrap(err, "decode archive")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	l.next = nextKey(entries)
	return nil
}

func nextKey(entries map[string]json.RawMessage) int {
	hi, found := 0, false
	for k := range entries {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if !found || n > hi {
			hi, found = n, true
		}
	}
	if !found {
		return 1
	}
	return hi + 1
}

// Append stores item under a fresh key and returns the key
func (l *ArchiveLedger) Append(item any) (string, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", eris.Wrap(err, "encode archive entry")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	key := strconv.Itoa(l.next)
	l.entries[key] = data
	l.next++
	return key, nil
}

// Len returns the number of entries
func (l *ArchiveLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Get returns the raw entry stored under key
func (l *ArchiveLedger) Get(key string) (json.RawMessage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.entries[key]
	return v, ok
}

// Keys returns all keys, numeric keys first in numeric order, then any
// non-numeric keys sorted lexically
func (l *ArchiveLedger) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedKeys(l.entries)
}

func sortedKeys(entries map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// MarshalJSON writes an object with keys in ledger order
func (l *ArchiveLedger) MarshalJSON() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range sortedKeys(l.entries) {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(l.entries[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Save writes the ledger to path
func (l *ArchiveLedger) Save(path string) error {
	return artifact.SaveJSON(path, l)
}
