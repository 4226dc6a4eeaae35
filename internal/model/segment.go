package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Segment is one captioned temporal slice of a source unit
type Segment struct {
	Index int    `json:"slice_num"` // Position within the source unit (contiguous, increasing)
	Text  string `json:"cap"`       // Visual caption for the slice
}

// UnmarshalJSON accepts both the captioner's {slice_num, cap} layout and the
// older {slice_id, caption} one.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw struct {
		SliceNum *int    `json:"slice_num"`
		SliceID  *int    `json:"slice_id"`
		Cap      *string `json:"cap"`
		Caption  *string `json:"caption"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.SliceNum != nil:
		s.Index = *raw.SliceNum
	case raw.SliceID != nil:
		s.Index = *raw.SliceID
	default:
		return fmt.Errorf("segment has no slice_num")
	}

	switch {
	case raw.Cap != nil:
		s.Text = *raw.Cap
	case raw.Caption != nil:
		s.Text = *raw.Caption
	}
	return nil
}

// SourceUnit is one long-form video and its ordered caption segments
type SourceUnit struct {
	ID       string    `json:"id"`
	Segments []Segment `json:"segments"`
}

// SegmentMap indexes caption text by segment index
func (u *SourceUnit) SegmentMap() map[int]string {
	m := make(map[int]string, len(u.Segments))
	for _, seg := range u.Segments {
		m[seg.Index] = seg.Text
	}
	return m
}

// Context renders the whole unit as a temporal log, one "[Slice_N]: caption"
// paragraph per segment.
func (u *SourceUnit) Context() string {
	var b strings.Builder
	for _, seg := range u.Segments {
		fmt.Fprintf(&b, "[Slice_%d]: %s\n\n", seg.Index, seg.Text)
	}
	return b.String()
}
