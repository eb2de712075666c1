package reconcile

import (
	"strings"
	"unicode"
)

// DefaultWeightKg applies when no rule matches.
const DefaultWeightKg = 0.5

type weightRule struct {
	keywords []string
	kg       float64
}

// weightRules is checked in order; the first keyword hit wins. More
// specific product kinds come before broad categories. Latin keywords match
// whole words only; Hangul keywords match anywhere since Korean compounds
// words without spaces.
var weightRules = []weightRule{
	{[]string{"립스틱", "립밤", "립글로스", "립틴트", "틴트", "lipstick", "lip", "lips", "tint"}, 0.05},
	{[]string{"마스크팩", "시트팩", "sheet mask"}, 0.1},
	{[]string{"세럼", "에센스", "크림", "앰플", "serum", "essence", "cream", "ampoule"}, 0.15},
	{[]string{"토너", "스킨", "로션", "toner", "lotion", "skincare", "skin care"}, 0.3},
	{[]string{"샴푸", "린스", "트리트먼트", "바디워시", "shampoo", "conditioner", "body wash"}, 0.6},
	{[]string{"신발", "스니커즈", "운동화", "슬립온", "shoes", "sneakers", "slippers"}, 1.0},
	{[]string{"의류", "티셔츠", "셔츠", "바지", "원피스", "옷", "apparel", "clothing", "t-shirt", "shirt"}, 0.3},
}

// WeightFor infers a shipping weight in kg. The category decides when it
// matches a rule; otherwise the product name is tried.
func WeightFor(category, name string) float64 {
	for _, text := range []string{category, name} {
		if kg, ok := matchWeight(text); ok {
			return kg
		}
	}
	return DefaultWeightKg
}

func matchWeight(text string) (float64, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0, false
	}
	words := " " + strings.Join(strings.FieldsFunc(lower, isWordBreak), " ") + " "

	for _, r := range weightRules {
		for _, k := range r.keywords {
			if isASCII(k) {
				if strings.Contains(words, " "+k+" ") {
					return r.kg, true
				}
				continue
			}
			if strings.Contains(lower, k) {
				return r.kg, true
			}
		}
	}
	return 0, false
}

func isWordBreak(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
