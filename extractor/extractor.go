// Package extractor turns a rendered page into a SignalBag of candidate
// values. It performs no network access and never calls a model.
//
// Per field, sources are consulted in descending trust:
//
//  1. JSON-LD and Open Graph metadata
//  2. site-profile CSS probes, first non-empty alternative wins
//  3. hidden form inputs (price only)
//  4. bounded visible text, kept as model context and never parsed
package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kjd1374/shopping-sub000/cleaner"
	"github.com/kjd1374/shopping-sub000/models"
)

// Options tunes extraction bounds.
type Options struct {
	// MaxTextRunes bounds DescriptionText and RawDetailText.
	MaxTextRunes int

	// MinImageDim drops images whose explicit width or height is smaller.
	MinImageDim int
}

// Extractor is stateless apart from its shared text cleaner and is safe
// for concurrent use.
type Extractor struct {
	opts    Options
	cleaner *cleaner.Cleaner
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	if opts.MaxTextRunes <= 0 {
		opts.MaxTextRunes = 6000
	}
	if opts.MinImageDim <= 0 {
		opts.MinImageDim = 100
	}
	return &Extractor{opts: opts, cleaner: cleaner.NewCleaner()}
}

var hiddenPriceKeys = []string{"saleprice", "sale_prc", "finalprice", "finalprc", "goodsprice", "price"}

// Extract reads signals for the given page family. A bag with no usable
// signal is reported as EXTRACTION_EMPTY.
func (e *Extractor) Extract(page *models.RenderedPage, family models.SiteFamily) (*models.SignalBag, error) {
	if page == nil || strings.TrimSpace(page.HTML) == "" {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "page has no content", nil)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "unparsable html", err)
	}
	base, _ := url.Parse(page.FinalURL)
	profile := ProfileFor(page.FinalURL)

	bag := &models.SignalBag{SourceURL: page.FinalURL}

	if family == models.FamilyRankingList {
		bag.Listings = readListings(doc, profile.Listing, base, e.opts.MinImageDim)
		if len(bag.Listings) == 0 {
			return nil, models.NewScrapeError(
				models.ErrCodeExtraction,
				"no ranking items matched the "+profile.Name+" profile",
				nil,
			)
		}
		return bag, nil
	}

	e.readProduct(doc, page, profile, base, bag)
	if bag.Empty() {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "no product signal found on "+page.FinalURL, nil)
	}
	return bag, nil
}

func (e *Extractor) readProduct(doc *goquery.Document, page *models.RenderedPage, profile *SiteProfile, base *url.URL, bag *models.SignalBag) {
	st := readStructured(doc)

	bag.Title = firstNonEmpty(st.Name, firstText(doc.Selection, profile.Title), doc.Find("title").First().Text())
	bag.Brand = firstNonEmpty(st.Brand, firstText(doc.Selection, profile.Brand))
	bag.Category = firstNonEmpty(st.Category, firstText(doc.Selection, profile.Category))

	// Prices come from the single highest tier that yields any.
	switch {
	case len(st.Prices) > 0:
		bag.PriceCandidates, bag.PriceSource = st.Prices, models.PriceSourceStructured
	default:
		if prices := probePrices(doc, profile.Price); len(prices) > 0 {
			bag.PriceCandidates, bag.PriceSource = prices, models.PriceSourceSelector
		} else if prices := hiddenPrices(doc); len(prices) > 0 {
			bag.PriceCandidates, bag.PriceSource = prices, models.PriceSourceHidden
		}
	}

	listPrice := st.ListPrice
	if listPrice == 0 {
		if v, ok := ParsePrice(firstText(doc.Selection, profile.OriginalPrice)); ok {
			listPrice = v
		}
	}
	if listPrice > 0 {
		bag.OriginalPrice = &listPrice
	}

	images := newImageSet(base)
	for _, src := range st.Images {
		images.add(src)
	}
	for _, p := range profile.Image {
		images.addSelection(doc.FindMatcher(p), e.opts.MinImageDim)
	}
	bag.Images = images.list

	lo, _, _ := MinMax(bag.PriceCandidates)
	bag.Options = readOptions(doc, profile.Option, lo)

	detail := e.cleaner.DetailText(page.HTML, page.FinalURL, profile.Detail, e.opts.MaxTextRunes)
	bag.DescriptionText = firstNonEmpty(detail.Description, cleaner.TruncateRunes(st.Description, e.opts.MaxTextRunes))
	bag.RawDetailText = detail.Raw
}

// probePrices returns the prices of the first probe that yields any.
func probePrices(doc *goquery.Document, probes selectorList) []float64 {
	for _, p := range probes {
		var prices []float64
		doc.FindMatcher(p).Each(func(_ int, el *goquery.Selection) {
			if v, ok := ParsePrice(textOf(el)); ok {
				prices = append(prices, v)
			}
		})
		if prices = uniquePrices(prices); len(prices) > 0 {
			return prices
		}
	}
	return nil
}

// hiddenPrices reads numeric hidden inputs whose name or id mentions a price.
func hiddenPrices(doc *goquery.Document) []float64 {
	var prices []float64
	doc.Find(`input[type="hidden"]`).Each(func(_ int, el *goquery.Selection) {
		key := strings.ToLower(el.AttrOr("name", "") + " " + el.AttrOr("id", ""))
		for _, k := range hiddenPriceKeys {
			if strings.Contains(key, k) {
				if v, ok := ParsePrice(el.AttrOr("value", "")); ok {
					prices = append(prices, v)
				}
				return
			}
		}
	})
	return uniquePrices(prices)
}
