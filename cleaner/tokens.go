package cleaner

import "unicode/utf8"

// EstimateTokens provides a fast token count estimate without a tokenizer.
//
// Heuristic: utf8 rune count / 3. Hangul runs closer to 1.5 runes per token
// and Latin text closer to 4, so a third over-counts mixed listings slightly.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}

// TruncateRunes cuts text to at most maxRunes runes without splitting a rune.
// maxRunes <= 0 returns text unchanged.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i]
		}
		n++
	}
	return text
}
