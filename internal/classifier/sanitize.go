package classifier

import (
	"errors"
	"strings"
)

// ErrMalformedOutput marks classifier text with no parseable JSON object.
// The caller degrades to UNKNOWN and keeps the raw text for audit.
var ErrMalformedOutput = errors.New("no JSON object in classifier output")

// ExtractJSON strips an optional markdown code fence (with or without a
// language tag) and returns the first balanced-brace JSON object in the
// text. Text that is already a bare JSON object passes through unchanged.
func ExtractJSON(raw string) (string, error) {
	s := stripFence(strings.TrimSpace(raw))

	start := strings.Index(s, "{")
	if start == -1 {
		return "", ErrMalformedOutput
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", ErrMalformedOutput
}

// stripFence removes a leading ``` or ```lang line and a trailing ``` line.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	rest := s[3:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		// Drop the opening fence and its optional language tag.
		rest = rest[nl+1:]
	} else {
		return s
	}

	if end := strings.LastIndex(rest, "```"); end != -1 {
		rest = rest[:end]
	}

	return strings.TrimSpace(rest)
}
