package extract

import (
	"encoding/json"
	"strings"
)

// LooksLikeJSONArray reports whether the span between the first '[' and the
// last ']' parses as JSON. Surrounding prose and fences are tolerated.
func LooksLikeJSONArray(text string) bool {
	return bracketSpanParses(text, '[', ']')
}

// LooksLikeJSONObject reports whether the span between the first '{' and the
// last '}' parses as JSON.
func LooksLikeJSONObject(text string) bool {
	return bracketSpanParses(text, '{', '}')
}

func bracketSpanParses(text string, open, close byte) bool {
	span, ok := bracketSpan(text, open, close)
	if !ok {
		return false
	}
	return json.Valid([]byte(span))
}

func bracketSpan(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// DecodeObject decodes an oracle response into v. It tries the raw text, then
// the text with code fences removed, then the outermost {...} span.
func DecodeObject(text string, v any) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	candidates := []string{text, StripFences(text)}
	if span, ok := bracketSpan(text, '{', '}'); ok {
		candidates = append(candidates, span)
	}

	for _, c := range candidates {
		if err := json.Unmarshal([]byte(c), v); err == nil {
			return true
		}
	}
	return false
}
