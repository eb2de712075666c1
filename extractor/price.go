package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var rePrice = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

// ParsePrice returns the price in s. Numbers marked with 원, ₩ or KRW win
// over bare numbers; numbers followed by % are discount rates and never
// count. Thousands separators are ignored.
func ParsePrice(s string) (float64, bool) {
	var bare float64
	for _, loc := range rePrice.FindAllStringIndex(s, -1) {
		before := strings.TrimSpace(s[:loc[0]])
		after := strings.TrimSpace(s[loc[1]:])
		if strings.HasPrefix(after, "%") {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(s[loc[0]:loc[1]], ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		if hasCurrency(before, after) {
			return v, true
		}
		if bare == 0 {
			bare = v
		}
	}
	return bare, bare > 0
}

func hasCurrency(before, after string) bool {
	return strings.HasPrefix(after, "원") ||
		strings.HasPrefix(strings.ToUpper(after), "KRW") ||
		strings.HasSuffix(before, "₩") ||
		strings.HasSuffix(strings.ToUpper(before), "KRW")
}

var reDelta = regexp.MustCompile(`\+\s*(\d{1,3}(?:,\d{3})+|\d+)\s*원?`)

// parseDelta extracts a "+2,000원" style surcharge.
func parseDelta(s string) float64 {
	m := reDelta.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	return v
}

var reRank = regexp.MustCompile(`\d+`)

// parseRank reads the first integer of a rank badge.
func parseRank(s string) int {
	m := reRank.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// uniquePrices drops non-positive values and duplicates, keeping order of
// first appearance.
func uniquePrices(in []float64) []float64 {
	seen := make(map[float64]struct{}, len(in))
	out := make([]float64, 0, len(in))
	for _, v := range in {
		if v <= 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MinMax returns the lowest and highest positive candidate.
func MinMax(candidates []float64) (lo, hi float64, ok bool) {
	pos := uniquePrices(candidates)
	if len(pos) == 0 {
		return 0, 0, false
	}
	sort.Float64s(pos)
	return pos[0], pos[len(pos)-1], true
}
