package extract

import (
	"encoding/json"
	"strings"
)

// RecordExtractor recovers complete JSON objects from oracle output that may
// be wrapped in prose or markdown fences, or cut off mid-stream.
type RecordExtractor struct {
	requiredKey string
}

// NewRecordExtractor creates an extractor that keeps only objects carrying requiredKey.
// An empty key keeps every object that parses.
func NewRecordExtractor(requiredKey string) *RecordExtractor {
	return &RecordExtractor{requiredKey: requiredKey}
}

// Extract scans text and returns each top-level object that parses and has the
// required key, in order. Unparseable spans and an unterminated tail are dropped.
func (e *RecordExtractor) Extract(text string) []json.RawMessage {
	clean := StripFences(text)
	if clean == "" {
		return nil
	}

	var records []json.RawMessage
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(clean); i++ {
		c := clean[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			// Strings only matter inside an object; a stray quote in prose
			// must not swallow the next record.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				if rec, ok := e.accept(clean[start : i+1]); ok {
					records = append(records, rec)
				}
				start = -1
			}
		}
	}

	return records
}

func (e *RecordExtractor) accept(span string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, false
	}
	if e.requiredKey != "" {
		if _, ok := obj[e.requiredKey]; !ok {
			return nil, false
		}
	}
	return json.RawMessage(span), true
}

// RecoverQuestions is the stage 1 recoverer: objects must carry a "question" key
func RecoverQuestions(text string) []json.RawMessage {
	return NewRecordExtractor("question").Extract(text)
}

// StripFences removes markdown code fence markers and trims whitespace
func StripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}
