package extractor

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// structured is what JSON-LD and Open Graph metadata say about a product.
type structured struct {
	Name        string
	Brand       string
	Category    string
	Description string
	Images      []string
	Prices      []float64
	ListPrice   float64
}

// readStructured merges every Product node found in JSON-LD blocks with
// Open Graph product tags. JSON-LD wins field by field.
func readStructured(doc *goquery.Document) structured {
	var s structured

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(sel.Text())), &v); err != nil {
			return
		}
		walkLD(v, func(node map[string]any) {
			mergeProduct(&s, node)
		})
	})

	og := readOpenGraph(doc)
	if s.Name == "" {
		s.Name = og["og:title"]
	}
	if s.Brand == "" {
		s.Brand = firstNonEmpty(og["product:brand"], og["og:brand"])
	}
	if s.Description == "" {
		s.Description = og["og:description"]
	}
	if img := og["og:image"]; img != "" {
		s.Images = append(s.Images, img)
	}
	for _, key := range []string{"product:sale_price:amount", "product:price:amount", "og:price:amount"} {
		if v, ok := ParsePrice(og[key]); ok {
			s.Prices = append(s.Prices, v)
		}
	}
	if s.ListPrice == 0 {
		if v, ok := ParsePrice(og["product:original_price:amount"]); ok {
			s.ListPrice = v
		}
	}

	s.Prices = uniquePrices(s.Prices)
	return s
}

func readOpenGraph(doc *goquery.Document) map[string]string {
	og := make(map[string]string)
	doc.Find("meta[property], meta[name]").Each(func(_ int, sel *goquery.Selection) {
		key := sel.AttrOr("property", sel.AttrOr("name", ""))
		content := strings.TrimSpace(sel.AttrOr("content", ""))
		if key == "" || content == "" {
			return
		}
		if _, seen := og[key]; !seen {
			og[key] = content
		}
	})
	return og
}

// walkLD visits every Product node in a decoded JSON-LD document,
// descending into arrays and @graph containers.
func walkLD(v any, fn func(map[string]any)) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			walkLD(item, fn)
		}
	case map[string]any:
		if isType(t["@type"], "Product", "ProductGroup") {
			fn(t)
		}
		if g, ok := t["@graph"]; ok {
			walkLD(g, fn)
		}
	}
}

func isType(v any, want ...string) bool {
	switch t := v.(type) {
	case string:
		for _, w := range want {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	case []any:
		for _, item := range t {
			if isType(item, want...) {
				return true
			}
		}
	}
	return false
}

func mergeProduct(s *structured, node map[string]any) {
	if s.Name == "" {
		s.Name = str(node["name"])
	}
	if s.Brand == "" {
		s.Brand = nameOf(node["brand"])
	}
	if s.Category == "" {
		s.Category = str(node["category"])
	}
	if s.Description == "" {
		s.Description = str(node["description"])
	}
	s.Images = append(s.Images, imageURLs(node["image"])...)

	offers := node["offers"]
	if list, ok := offers.([]any); ok {
		for _, o := range list {
			mergeOffer(s, o)
		}
	} else {
		mergeOffer(s, offers)
	}
}

func mergeOffer(s *structured, v any) {
	offer, ok := v.(map[string]any)
	if !ok {
		return
	}
	for _, key := range []string{"price", "lowPrice", "highPrice"} {
		if p, ok := number(offer[key]); ok {
			s.Prices = append(s.Prices, p)
		}
	}

	specs := offer["priceSpecification"]
	list, isList := specs.([]any)
	if !isList {
		list = []any{specs}
	}
	for _, item := range list {
		spec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p, ok := number(spec["price"])
		if !ok {
			continue
		}
		if strings.Contains(str(spec["priceType"]), "ListPrice") || strings.Contains(str(spec["priceType"]), "StrikethroughPrice") {
			if p > s.ListPrice {
				s.ListPrice = p
			}
			continue
		}
		s.Prices = append(s.Prices, p)
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, t > 0
	case string:
		return ParsePrice(t)
	}
	return 0, false
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// nameOf reads a schema.org Thing that may be a bare string or {"name": ...}.
func nameOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return str(t["name"])
	case []any:
		for _, item := range t {
			if n := nameOf(item); n != "" {
				return n
			}
		}
	}
	return ""
}

func imageURLs(v any) []string {
	switch t := v.(type) {
	case string:
		if t = strings.TrimSpace(t); t != "" {
			return []string{t}
		}
	case map[string]any:
		if u := firstNonEmpty(str(t["url"]), str(t["contentUrl"])); u != "" {
			return []string{u}
		}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, imageURLs(item)...)
		}
		return out
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
