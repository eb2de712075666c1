package extractor

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kjd1374/shopping-sub000/models"
)

// lazyAttrs are read before src, which is often a placeholder on lazy pages.
var lazyAttrs = []string{"data-src", "data-original", "data-lazy-src", "data-lazy", "src"}

var placeholderHints = []string{"blank.gif", "spacer.gif", "no_img", "noimg", "loading.gif", "transparent.png"}

// absoluteURL resolves protocol-relative and root-relative references
// against base. Non-http(s) results are rejected.
func absoluteURL(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "javascript:") {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		scheme := "https"
		if base != nil && base.Scheme != "" {
			scheme = base.Scheme
		}
		raw = scheme + ":" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		if base == nil {
			return ""
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// imageSrc returns the best source attribute of an <img> or a bare URL-bearing
// element (meta content, link href).
func imageSrc(sel *goquery.Selection) string {
	for _, attr := range lazyAttrs {
		if v := strings.TrimSpace(sel.AttrOr(attr, "")); v != "" && !isPlaceholder(v) {
			return v
		}
	}
	if v := sel.AttrOr("content", ""); v != "" {
		return v
	}
	return sel.AttrOr("href", "")
}

func isPlaceholder(src string) bool {
	lower := strings.ToLower(src)
	if strings.HasPrefix(lower, "data:") {
		return true
	}
	for _, h := range placeholderHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// tooSmall reports whether an explicit width or height is below minDim.
// Missing or unparsable dimensions never disqualify an image.
func tooSmall(sel *goquery.Selection, minDim int) bool {
	if minDim <= 0 {
		return false
	}
	for _, attr := range []string{"width", "height"} {
		v := strings.TrimSuffix(strings.TrimSpace(sel.AttrOr(attr, "")), "px")
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 && n < minDim {
			return true
		}
	}
	return false
}

// imageSet collects absolute, de-duplicated image URLs in insertion order.
type imageSet struct {
	base *url.URL
	seen map[string]struct{}
	list []string
}

func newImageSet(base *url.URL) *imageSet {
	return &imageSet{base: base, seen: make(map[string]struct{})}
}

func (s *imageSet) add(raw string) {
	abs := absoluteURL(raw, s.base)
	if abs == "" || isPlaceholder(abs) {
		return
	}
	if _, ok := s.seen[abs]; ok {
		return
	}
	s.seen[abs] = struct{}{}
	s.list = append(s.list, abs)
}

// addSelection adds every image matched by sel that passes the size filter.
// Non-img matches contribute the images they contain.
func (s *imageSet) addSelection(sel *goquery.Selection, minDim int) {
	sel.Each(func(_ int, el *goquery.Selection) {
		imgs := el
		if goquery.NodeName(el) != "img" && goquery.NodeName(el) != "meta" {
			imgs = el.Find("img")
		}
		imgs.Each(func(_ int, img *goquery.Selection) {
			if tooSmall(img, minDim) {
				return
			}
			s.add(imageSrc(img))
		})
	})
}

var soldOutHints = []string{"품절", "일시품절", "sold out", "soldout"}

// readOptions parses variant entries from the first option probe that
// matches. Placeholder entries such as "옵션 선택" are skipped. Surcharges
// ("+2,000원") are resolved against base when it is known.
func readOptions(doc *goquery.Document, probes selectorList, base float64) []models.OptionSignal {
	for _, probe := range probes {
		matched := doc.FindMatcher(probe)
		if matched.Length() == 0 {
			continue
		}

		var out []models.OptionSignal
		matched.Each(func(_ int, el *goquery.Selection) {
			text := strings.Join(strings.Fields(el.Text()), " ")
			value, hasValue := el.Attr("value")
			if text == "" || (goquery.NodeName(el) == "option" && hasValue && strings.TrimSpace(value) == "") {
				return
			}
			if strings.Contains(text, "선택") && !strings.ContainsAny(text, "0123456789") {
				return
			}

			lower := strings.ToLower(text)
			opt := models.OptionSignal{Name: cleanOptionName(text)}
			_, disabled := el.Attr("disabled")
			opt.SoldOut = disabled || strings.Contains(el.AttrOr("class", ""), "soldout")
			for _, h := range soldOutHints {
				if strings.Contains(lower, h) {
					opt.SoldOut = true
				}
			}

			if p, ok := ParsePrice(el.AttrOr("data-price", "")); ok {
				opt.Price = p
			} else if d := parseDelta(text); d > 0 && base > 0 {
				opt.Price = base + d
			}
			if opt.Name != "" {
				out = append(out, opt)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// cleanOptionName drops sold-out markers and surcharge suffixes.
func cleanOptionName(text string) string {
	name := text
	for _, h := range []string{"(품절)", "[품절]", "(일시품절)", "품절"} {
		name = strings.ReplaceAll(name, h, "")
	}
	if idx := strings.Index(name, "(+"); idx > 0 {
		name = name[:idx]
	}
	return strings.TrimSpace(name)
}
