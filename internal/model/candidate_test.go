package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidate_PreservesUnknownKeys(t *testing.T) {
	in := `{
		"question": "Who opened the box?",
		"answer": "the man in red",
		"category": "Causal_Inference",
		"hop_level": "2-Hop",
		"evidence_slices": [2, 3],
		"reasoning_chain": "Step 1...",
		"annotator_note": {"source": "manual"}
	}`

	var c Candidate
	require.NoError(t, json.Unmarshal([]byte(in), &c))

	assert.Equal(t, "Who opened the box?", c.Question)
	assert.Equal(t, CategoryCausalInference, c.Category)
	assert.Equal(t, HopLevel(2), c.HopLevel)
	assert.Equal(t, SegmentRefs{2, 3}, c.EvidenceSegments)
	require.Contains(t, c.Extra, "annotator_note")
	assert.NotContains(t, c.Extra, "question")

	c.FailureReason = "rejected"
	out, err := json.Marshal(c)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, map[string]any{"source": "manual"}, back["annotator_note"])
	assert.Equal(t, "2-Hop", back["hop_level"])
	assert.Equal(t, "rejected", back["failure_reason"])
}

func TestCandidate_KnownFieldWinsOverExtra(t *testing.T) {
	c := Candidate{
		Question: "q",
		Extra:    map[string]json.RawMessage{"question": json.RawMessage(`"stale"`)},
	}
	out, err := json.Marshal(c)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "q", back["question"])
}

func TestHopLevel_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want HopLevel
	}{
		{`3`, 3},
		{`"4"`, 4},
		{`"2-Hop"`, 2},
		{`"3-hop"`, 3},
		{`"Other"`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		var h HopLevel
		require.NoError(t, json.Unmarshal([]byte(tt.in), &h), tt.in)
		assert.Equal(t, tt.want, h, tt.in)
	}
}

func TestHopLevel_UnmarshalRejectsUnknownLabel(t *testing.T) {
	var h HopLevel
	assert.Error(t, json.Unmarshal([]byte(`"Multi"`), &h))
	assert.Error(t, json.Unmarshal([]byte(`true`), &h))
}

func TestCandidate_MalformedKnownFieldsSurviveRoundTrip(t *testing.T) {
	in := `{
		"question": "Where does the cat go?",
		"answer": "under the table",
		"hop_level": "Multi",
		"evidence_slices": ["Slice_1", 2]
	}`

	var c Candidate
	require.NoError(t, json.Unmarshal([]byte(in), &c))
	assert.Equal(t, "Where does the cat go?", c.Question)
	assert.Equal(t, HopLevel(0), c.HopLevel)
	assert.Nil(t, c.EvidenceSegments)

	raw, bad := c.Unparsed("evidence_slices")
	require.True(t, bad)
	assert.JSONEq(t, `["Slice_1", 2]`, string(raw))
	_, bad = c.Unparsed("question")
	assert.False(t, bad)

	out, err := json.Marshal(c)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "Multi", back["hop_level"])
	assert.Equal(t, []any{"Slice_1", float64(2)}, back["evidence_slices"])
}

func TestCandidate_UnparsedIgnoresUnknownKeys(t *testing.T) {
	var c Candidate
	require.NoError(t, json.Unmarshal([]byte(`{"question": "q", "annotator_note": 1}`), &c))
	_, bad := c.Unparsed("annotator_note")
	assert.False(t, bad)
}

func TestCategory_Valid(t *testing.T) {
	assert.True(t, CategoryVisualTracking.Valid())
	assert.False(t, Category("Trivia").Valid())
}

func TestSegmentRefs_Unmarshal(t *testing.T) {
	var refs SegmentRefs
	require.NoError(t, json.Unmarshal([]byte(`[12, "45", " 7 "]`), &refs))
	assert.Equal(t, SegmentRefs{12, 45, 7}, refs)

	assert.Error(t, json.Unmarshal([]byte(`["twelve"]`), &refs))
	assert.Error(t, json.Unmarshal([]byte(`[true]`), &refs))
}

func TestSegmentRefs_Without(t *testing.T) {
	refs := SegmentRefs{1, 2, 3}
	assert.Equal(t, SegmentRefs{2, 3}, refs.Without(0))
	assert.Equal(t, SegmentRefs{1, 3}, refs.Without(1))
	assert.Equal(t, SegmentRefs{1, 2}, refs.Without(2))
	assert.Equal(t, SegmentRefs{1, 2, 3}, refs, "original must not change")
}

func TestSegment_UnmarshalAliases(t *testing.T) {
	var segs []Segment
	in := `[{"slice_num": 1, "cap": "a man enters"}, {"slice_id": 2, "caption": "he sits"}]`
	require.NoError(t, json.Unmarshal([]byte(in), &segs))
	assert.Equal(t, []Segment{{1, "a man enters"}, {2, "he sits"}}, segs)

	var bad Segment
	assert.Error(t, json.Unmarshal([]byte(`{"cap": "no index"}`), &bad))
}

func TestSourceUnit_ContextAndMap(t *testing.T) {
	u := SourceUnit{ID: "v1", Segments: []Segment{{1, "red coat"}, {2, "blue car"}}}
	assert.Equal(t, "[Slice_1]: red coat\n\n[Slice_2]: blue car\n\n", u.Context())
	assert.Equal(t, map[int]string{1: "red coat", 2: "blue car"}, u.SegmentMap())
}
