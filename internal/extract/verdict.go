package extract

import (
	"encoding/json"
	"strings"
)

// Verdict is an upper-cased oracle verdict token such as PASS or SOLVABLE
type Verdict string

// UnmarshalJSON normalises case and surrounding whitespace
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Verdict(strings.ToUpper(strings.TrimSpace(s)))
	return nil
}

// Flag is a boolean verdict field. Oracles sometimes answer with the string
// "true"/"yes" instead of a JSON boolean; both decode the same way.
type Flag bool

// UnmarshalJSON accepts booleans and their common string spellings
func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = false
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// TextMatch is the last-resort verdict reader, used only when a response that
// passed shape validation still cannot be decoded. It reports whether token
// appears in the upper-cased text and none of the excluded tokens do.
func TextMatch(text, token string, exclude ...string) bool {
	upper := strings.ToUpper(text)
	for _, ex := range exclude {
		if strings.Contains(upper, strings.ToUpper(ex)) {
			return false
		}
	}
	return strings.Contains(upper, strings.ToUpper(token))
}
