package jsonutil

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Repair extracts a valid JSON document from raw model output, fixing the
// common defects the model produces: markdown code fences, prose around the
// object, trailing commas, unescaped newlines inside string values, and
// truncated tails. Returns the repaired bytes and whether parsing succeeded.
func Repair(raw []byte) (json.RawMessage, bool) {
	if json.Valid(bytes.TrimSpace(raw)) {
		return json.RawMessage(bytes.TrimSpace(raw)), true
	}
	text := fixCommon(string(raw))
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), true
	}
	// Prose around the object: decode from the first '{' and stop at the
	// first complete document.
	if start := strings.IndexByte(text, '{'); start >= 0 {
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var doc json.RawMessage
		if err := dec.Decode(&doc); err == nil {
			return doc, true
		}
	}
	if out, ok := salvageTruncated(text); ok {
		return out, true
	}
	return nil, false
}

// Unmarshal repairs raw and unmarshals the result into v.
func Unmarshal(raw []byte, v any) error {
	fixed, ok := Repair(raw)
	if !ok {
		return json.Unmarshal(raw, v) // surface the original parse error
	}
	return json.Unmarshal(fixed, v)
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

func fixCommon(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	// Newlines inside string values break the parser; join them.
	var b strings.Builder
	b.Grow(len(text))
	inString, escaped := false, false
	for _, r := range text {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r == '\n':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return trailingComma.ReplaceAllString(b.String(), "$1")
}

// salvageTruncated closes open strings, brackets and braces of a document
// that was cut off mid-generation, walking back when the blunt close fails.
func salvageTruncated(text string) (json.RawMessage, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	text = text[start:]

	lowest := len(text) - 500
	if lowest < 1 {
		lowest = 1
	}
	for trim := len(text); trim >= lowest; trim-- {
		candidate := strings.TrimRight(strings.TrimRight(text[:trim], " \t\n"), ",")
		braces, brackets, inString, escaped := 0, 0, false, false
		for _, r := range candidate {
			if escaped {
				escaped = false
				continue
			}
			switch {
			case r == '\\':
				escaped = true
			case r == '"':
				inString = !inString
			case inString:
			case r == '{':
				braces++
			case r == '}':
				braces--
			case r == '[':
				brackets++
			case r == ']':
				brackets--
			}
		}
		if inString {
			candidate += `"`
		}
		if brackets > 0 {
			candidate += strings.Repeat("]", brackets)
		}
		if braces > 0 {
			candidate += strings.Repeat("}", braces)
		}
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}
