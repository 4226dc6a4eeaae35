package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archived struct {
	FileName string `json:"file_name"`
	Question string `json:"question"`
}

func TestArchive_EmptyStartsAtOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong_question.json")
	l, err := LoadArchive(path)
	require.NoError(t, err)

	key, err := l.Append(archived{Question: "Is the sky blue? The sky is blue."})
	require.NoError(t, err)
	assert.Equal(t, "1", key)
}

func TestArchive_MonotonicAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong_question.json")

	var seen []int
	for run := 0; run < 3; run++ {
		l, err := LoadArchive(path)
		require.NoError(t, err)
		before := map[string]json.RawMessage{}
		for _, k := range l.Keys() {
			v, _ := l.Get(k)
			before[k] = v
		}

		for i := 0; i < 2; i++ {
			key, err := l.Append(archived{Question: "q" + strconv.Itoa(run) + strconv.Itoa(i)})
			require.NoError(t, err)
			n, err := strconv.Atoi(key)
			require.NoError(t, err)
			if len(seen) > 0 {
				assert.Greater(t, n, seen[len(seen)-1])
			}
			seen = append(seen, n)
		}
		require.NoError(t, l.Save(path))

		reloaded, err := LoadArchive(path)
		require.NoError(t, err)
		for k, v := range before {
			got, ok := reloaded.Get(k)
			require.True(t, ok, "key %s lost", k)
			assert.JSONEq(t, string(v), string(got), "key %s overwritten", k)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, seen)
}

func TestArchive_LegacyListUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong_question.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"question": "a"}, {"question": "b"}]`), 0o644))

	l, err := LoadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, l.Keys())

	key, err := l.Append(archived{Question: "c"})
	require.NoError(t, err)
	assert.Equal(t, "2", key)
}

func TestArchive_GapsAndForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong_question.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"3": {"question": "x"}, "10": {"question": "y"}, "note": {"question": "z"}}`), 0o644))

	l, err := LoadArchive(path)
	require.NoError(t, err)
	key, err := l.Append(archived{Question: "w"})
	require.NoError(t, err)
	assert.Equal(t, "11", key)
	assert.Equal(t, []string{"3", "10", "11", "note"}, l.Keys())

	require.NoError(t, l.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back map[string]archived
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "z", back["note"].Question)
	assert.Equal(t, "w", back["11"].Question)
}

func TestArchive_CorruptFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong_question.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": `), 0o644))
	_, err := LoadArchive(path)
	assert.Error(t, err)
}

func TestQuarantine_SaveLoad(t *testing.T) {
	q := NewQuarantineSet()
	q.Add(7, 3, 7, 12)
	assert.Equal(t, 3, q.Len())
	assert.True(t, q.Contains(3))
	assert.False(t, q.Contains(4))

	path := filepath.Join(t.TempDir(), "bad_qa_ids.json")
	require.NoError(t, q.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[3, 7, 12]`, string(data))

	loaded, err := LoadQuarantine(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 12}, loaded.Sorted())

	_, err = LoadQuarantine(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
