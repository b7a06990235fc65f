package llm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Veraticus/spice-audit/internal/model"
)

// ExtractClassification pulls a classification out of generated text. It
// never fails: text without a parseable object yields
// model.DefaultClassification().
//
// The payload is taken to be everything from the first '{' to the last '}'.
// Braces are not balanced, so commentary after the object that itself
// contains a '}' makes the span unparseable and the default is returned.
func ExtractClassification(text string) model.ClassificationResult {
	span, ok := candidateSpan(text)
	if !ok {
		return model.DefaultClassification()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return model.DefaultClassification()
	}

	return model.ClassificationResult{
		Category:              stringField(fields["category"]),
		IsPersonal:            boolField(fields["is_personal"]),
		PolicyViolationReason: reasonField(fields["policy_violation_reason"]),
	}
}

// candidateSpan returns text from the first '{' through the last '}'.
func candidateSpan(text string) (string, bool) {
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last < 0 || first > last {
		return "", false
	}
	return text[first : last+1], true
}

// stringField returns raw as a string when it is a JSON string.
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// boolField accepts a JSON boolean or a string such as "true" or "yes".
// Anything else counts as absent.
func boolField(raw json.RawMessage) *bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return &b
	}

	var s string
	if json.Unmarshal(raw, &s) != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "yes"):
		b = true
	case strings.EqualFold(s, "no"):
		b = false
	default:
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			return nil
		}
		b = parsed
	}
	return &b
}

func reasonField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
