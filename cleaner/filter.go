package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelectors match page chrome that never describes the product:
// navigation, recommendation carousels, review widgets and legal footers.
var noiseSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"header", "footer", "nav", "aside",
	"#header", "#footer", "#gnb", ".gnb", ".lnb",
	"[class*='recommend']", "[class*='review']", "[class*='banner']",
	"[class*='popup']", "[class*='cookie']",
}

// FilterContent removes excluded elements, then keeps only elements matching
// includeTags when any match. With both lists empty the input is returned.
func FilterContent(html string, includeTags, excludeTags []string) string {
	if len(includeTags) == 0 && len(excludeTags) == 0 {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	for _, selector := range excludeTags {
		doc.Find(selector).Remove()
	}

	if len(includeTags) > 0 {
		matches := doc.Find(strings.Join(includeTags, ", "))
		if matches.Length() > 0 {
			var buf strings.Builder
			matches.Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					buf.WriteString(h)
				}
			})
			return buf.String()
		}
	}

	result, err := doc.Html()
	if err != nil {
		return html
	}
	return result
}
