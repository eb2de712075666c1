package reconcile

import "encoding/json"

// FirstJSONObject returns the first balanced {...} span in text that is
// valid JSON. Braces inside string literals are ignored, so prose, code
// fences, quoted braces and stray unclosed braces around the payload are
// tolerated.
func FirstJSONObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := balancedEnd(text, start)
		if !ok {
			continue
		}
		if span := text[start : end+1]; json.Valid([]byte(span)) {
			return span, true
		}
	}
	return "", false
}

// balancedEnd returns the index of the brace closing the one at start.
func balancedEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
