package scraper

import "strings"

// challengeMarkers are substrings that only appear on anti-bot interstitials.
// Matching is case-insensitive and limited to the head of the document plus
// short pages, since real product pages may mention "captcha" in scripts.
var challengeMarkers = []string{
	"cf-challenge",
	"cf-browser-verification",
	"challenge-platform",
	"just a moment...",
	"checking your browser",
	"attention required! | cloudflare",
	"access denied",
	"g-recaptcha",
	"h-captcha",
	"px-captcha",
	"are you a robot",
	"보안 확인",
	"잠시만 기다려",
	"비정상적인 접근",
	"자동입력 방지",
}

// shortPageLimit is the size below which the whole document is scanned.
const shortPageLimit = 20000

// DetectChallenge reports whether html is an anti-bot challenge page and
// which marker matched.
func DetectChallenge(html string) (string, bool) {
	lower := strings.ToLower(html)

	scan := lower
	if len(lower) > shortPageLimit {
		// Large documents are real pages unless the title or head says otherwise.
		end := strings.Index(lower, "</head>")
		if end < 0 {
			end = shortPageLimit
		}
		scan = lower[:end]
	}

	for _, m := range challengeMarkers {
		if strings.Contains(scan, m) {
			return m, true
		}
	}
	return "", false
}
