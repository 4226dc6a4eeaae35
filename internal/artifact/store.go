package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/hopqa/internal/model"
	"github.com/rotisserie/eris"
)

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path is an existing directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// LoadJSON decodes the file at path into v
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "decode %s", path)
	}
	return nil
}

// SaveJSON writes v as indented UTF-8 JSON. Non-ASCII text is written as-is.
// The file is replaced atomically via a temp file in the same directory.
func SaveJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrapf(err, "encode %s", path)
	}
	return writeAtomic(path, buf.Bytes())
}

// WriteText writes text to path atomically
func WriteText(path, text string) error {
	return writeAtomic(path, []byte(text))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "create temp for %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return eris.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrapf(err, "close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return eris.Wrapf(err, "commit %s", path)
	}
	return nil
}

var appendMu sync.Mutex

// AppendLine appends one line to a shared log file such as failed_units.log.
// Safe to call from concurrent workers.
func AppendLine(path, line string) error {
	appendMu.Lock()
	defer appendMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create dir for %s", path)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(strings.TrimRight(line, "\n") + "\n"); err != nil {
		return eris.Wrapf(err, "append %s", path)
	}
	return nil
}

// ListUnits returns the sorted unit IDs of files in dir ending with suffix
func ListUnits(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "list %s", dir)
	}
	var units []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			continue
		}
		units = append(units, strings.TrimSuffix(name, suffix))
	}
	sort.Strings(units)
	return units, nil
}

// SelectRange returns ids[start:end] clamped to the slice. end <= 0 means
// no upper bound.
func SelectRange(ids []string, start, end int) []string {
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > len(ids) {
		end = len(ids)
	}
	if start >= end {
		return []string{}
	}
	return ids[start:end]
}

// LoadCandidates reads a per-unit candidate array. A missing file is
// reported with fs.ErrNotExist in the chain.
func LoadCandidates(path string) ([]model.Candidate, error) {
	var items []model.Candidate
	if err := LoadJSON(path, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Candidate{}
	}
	return items, nil
}

// SaveCandidates writes a per-unit candidate array; nil is written as []
func SaveCandidates(path string, items []model.Candidate) error {
	if items == nil {
		items = []model.Candidate{}
	}
	return SaveJSON(path, items)
}

// LoadSourceUnit reads <captionDir>/<unit>.json
func LoadSourceUnit(captionDir, unit string) (model.SourceUnit, error) {
	var segs []model.Segment
	if err := LoadJSON(filepath.Join(captionDir, unit+".json"), &segs); err != nil {
		return model.SourceUnit{}, err
	}
	return model.SourceUnit{ID: unit, Segments: segs}, nil
}

// IsNotExist reports whether err stems from a missing file
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || eris.Is(err, fs.ErrNotExist)
}
