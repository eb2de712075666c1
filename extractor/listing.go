package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kjd1374/shopping-sub000/models"
)

// readListings walks the first item probe that yields a titled, linked
// entry. Rank comes from an explicit badge when it parses, otherwise from
// the position among kept items.
func readListings(doc *goquery.Document, lp listingProfile, base *url.URL, minDim int) []models.ListingSignal {
	for _, probe := range lp.Item {
		items := doc.FindMatcher(probe)
		if items.Length() == 0 {
			continue
		}

		var out []models.ListingSignal
		seen := make(map[string]struct{})
		items.Each(func(_ int, item *goquery.Selection) {
			title := firstText(item, lp.Title)
			link := absoluteURL(firstAttr(item, lp.Link, "href"), base)
			if title == "" || link == "" {
				return
			}
			if _, dup := seen[link]; dup {
				return
			}
			seen[link] = struct{}{}

			images := newImageSet(base)
			for _, p := range lp.Image {
				images.addSelection(item.FindMatcher(p).First(), minDim)
				if len(images.list) > 0 {
					break
				}
			}

			rank := parseRank(firstText(item, lp.Rank))
			if rank <= 0 {
				rank = len(out) + 1
			}

			l := models.ListingSignal{
				Rank:      rank,
				Title:     title,
				Brand:     firstText(item, lp.Brand),
				OriginURL: link,
			}
			if len(images.list) > 0 {
				l.Image = images.list[0]
			}
			out = append(out, l)
		})
		if len(out) > 0 {
			return normalizeRanks(out)
		}
	}
	return nil
}

// normalizeRanks falls back to positional ranks when badges collide, so
// ranks within one list are always unique.
func normalizeRanks(in []models.ListingSignal) []models.ListingSignal {
	seen := make(map[int]struct{}, len(in))
	for _, l := range in {
		if _, dup := seen[l.Rank]; dup {
			for i := range in {
				in[i].Rank = i + 1
			}
			return in
		}
		seen[l.Rank] = struct{}{}
	}
	return in
}

// firstText returns the first non-empty text among probes, searched within
// scope. Input and meta elements contribute their value or content.
func firstText(scope *goquery.Selection, probes selectorList) string {
	for _, p := range probes {
		var found string
		scope.FindMatcher(p).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			found = textOf(el)
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func firstAttr(scope *goquery.Selection, probes selectorList, attr string) string {
	for _, p := range probes {
		matched := scope.FindMatcher(p)
		if matched.Length() == 0 && scope.IsMatcher(p) {
			matched = scope
		}
		var found string
		matched.EachWithBreak(func(_ int, el *goquery.Selection) bool {
			found = strings.TrimSpace(el.AttrOr(attr, ""))
			return found == "" || strings.HasPrefix(found, "#") || strings.HasPrefix(found, "javascript:")
		})
		if found != "" && !strings.HasPrefix(found, "#") && !strings.HasPrefix(found, "javascript:") {
			return found
		}
	}
	return ""
}

func textOf(el *goquery.Selection) string {
	switch goquery.NodeName(el) {
	case "input":
		return strings.TrimSpace(el.AttrOr("value", ""))
	case "meta":
		return strings.TrimSpace(el.AttrOr("content", ""))
	}
	return strings.Join(strings.Fields(el.Text()), " ")
}
