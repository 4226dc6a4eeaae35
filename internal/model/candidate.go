package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Candidate is one generated multi-hop question/answer pair. It is the unit of
// work that flows through every stage. Audit fields are only ever added.
type Candidate struct {
	Question         string      `json:"question"`
	Answer           string      `json:"answer"`
	Category         Category    `json:"category,omitempty"`
	HopLevel         HopLevel    `json:"hop_level,omitempty"`
	EvidenceSegments SegmentRefs `json:"evidence_slices"`
	ReasoningChain   string      `json:"reasoning_chain,omitempty"`

	LogicCheckReasoning string `json:"logic_check_reasoning,omitempty"` // Stage 4 trace
	MissingAnalysis     string `json:"missing_analysis,omitempty"`      // Stage 5 trace
	VisualProof         string `json:"visual_proof,omitempty"`          // Stage 6 justification
	OriginalAnswer      string `json:"original_text_answer,omitempty"`  // Set when stage 6 revises the answer
	VerdictMeta         string `json:"verdict_meta,omitempty"`          // "REFINED" after a revision
	FailureReason       string `json:"failure_reason,omitempty"`

	// Extra holds keys this version does not know about so they survive a
	// load/save cycle untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// VerdictRefined marks an answer that was replaced after visual verification
const VerdictRefined = "REFINED"

type candidateFields Candidate

// targets maps each known wire key to the field it decodes into
func (c *Candidate) targets() map[string]any {
	return map[string]any{
		"question":              &c.Question,
		"answer":                &c.Answer,
		"category":              &c.Category,
		"hop_level":             &c.HopLevel,
		"evidence_slices":       &c.EvidenceSegments,
		"reasoning_chain":       &c.ReasoningChain,
		"logic_check_reasoning": &c.LogicCheckReasoning,
		"missing_analysis":      &c.MissingAnalysis,
		"visual_proof":          &c.VisualProof,
		"original_text_answer":  &c.OriginalAnswer,
		"verdict_meta":          &c.VerdictMeta,
		"failure_reason":        &c.FailureReason,
	}
}

// UnmarshalJSON decodes field by field. Unknown keys, and known keys whose
// value has the wrong shape, are kept verbatim in Extra; the typed field is
// left zero. A malformed field never drops the record.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Candidate
	for key, dst := range out.targets() {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err == nil {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		out.Extra = raw
	}

	*c = out
	return nil
}

// MarshalJSON writes the known fields plus any preserved extras. A preserved
// value for a known key is written only while the typed field is still empty.
func (c Candidate) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(candidateFields(c))
	if err != nil || len(c.Extra) == 0 {
		return data, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if cur, known := merged[k]; known && !emptyJSON(cur) {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Unparsed returns the verbatim value of a known key that failed to decode
func (c Candidate) Unparsed(key string) (json.RawMessage, bool) {
	if _, known := c.targets()[key]; !known {
		return nil, false
	}
	v, ok := c.Extra[key]
	return v, ok
}

func emptyJSON(v json.RawMessage) bool {
	switch strings.TrimSpace(string(v)) {
	case "null", `""`, "[]":
		return true
	}
	return false
}

// Category is the reasoning pattern a question exercises
type Category string

const (
	CategoryStateMutation   Category = "State_Mutation"   // Entity state at T1 vs T2
	CategoryCausalInference Category = "Causal_Inference" // Cause at T1, effect at T2
	CategoryVisualTracking  Category = "Visual_Tracking"  // Same entity across scenes
	CategoryGlobalSummary   Category = "Global_Summary"   // Aggregation over the timeline
)

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryStateMutation, CategoryCausalInference, CategoryVisualTracking, CategoryGlobalSummary:
		return true
	}
	return false
}

// HopLevel is the declared number of distinct segments a question needs.
// On disk it is written as "N-Hop"; bare integers are accepted on read.
type HopLevel int

func (h HopLevel) String() string {
	if h <= 0 {
		return "Other"
	}
	return fmt.Sprintf("%d-Hop", int(h))
}

// MarshalJSON writes the "N-Hop" form
func (h HopLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON accepts 3, "3", "3-Hop", "3-hop" and "Other" (0). Any other
// value is an error, so Candidate keeps it verbatim.
func (h *HopLevel) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*h = HopLevel(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("hop level %s is not a number or label", string(data))
	}
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "other" {
		*h = 0
		return nil
	}
	s = strings.TrimSuffix(s, "-hop")
	s = strings.TrimSuffix(s, " hop")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("hop level %q is not a number or label", s)
	}
	*h = HopLevel(n)
	return nil
}

// SegmentRefs is the ordered list of segment indices a candidate cites
type SegmentRefs []int

// UnmarshalJSON accepts integers and numeric strings
func (r *SegmentRefs) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}

	refs := make(SegmentRefs, 0, len(items))
	for _, item := range items {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			refs = append(refs, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("segment reference %s is not a number", string(item))
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("segment reference %q is not a number", s)
		}
		refs = append(refs, n)
	}
	*r = refs
	return nil
}

// Without returns a copy of r with the element at position i removed
func (r SegmentRefs) Without(i int) SegmentRefs {
	out := make(SegmentRefs, 0, len(r)-1)
	out = append(out, r[:i]...)
	return append(out, r[i+1:]...)
}
