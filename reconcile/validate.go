package reconcile

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/kjd1374/shopping-sub000/cleaner"
	"github.com/kjd1374/shopping-sub000/extractor"
	"github.com/kjd1374/shopping-sub000/models"
)

const maxDescriptionRunes = 2000

// maxPlausibleWeightKg rejects model weights that cannot be a parcel.
const maxPlausibleWeightKg = 30

// flexNumber accepts 19000, "19000" and "19,000원".
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, _ := extractor.ParsePrice(s)
		*n = flexNumber(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}

// candidate is the model's reply before validation.
type candidate struct {
	Name          string     `json:"name"`
	Brand         string     `json:"brand"`
	Price         flexNumber `json:"price"`
	OriginalPrice flexNumber `json:"originalPrice"`
	Images        []string   `json:"images"`
	Category      string     `json:"category"`
	Weight        flexNumber `json:"weight"`
	Options       []struct {
		Name    string     `json:"name"`
		Price   flexNumber `json:"price"`
		SoldOut bool       `json:"soldOut"`
	} `json:"options"`
	Description string `json:"description"`
}

// validate merges a model candidate with the extracted signals and enforces
// the record invariants: price > 0, originalPrice >= price, weight > 0.
//
// Extracted price candidates are authoritative when present. With two or
// more, price is the lowest and originalPrice the highest. The model's
// prices are used only when the page yielded none.
func validate(c candidate, bag *models.SignalBag) (*models.NormalizedProduct, error) {
	if bag == nil {
		bag = &models.SignalBag{}
	}

	p := &models.NormalizedProduct{
		Name:        firstNonEmpty(c.Name, bag.Title),
		Brand:       firstNonEmpty(c.Brand, bag.Brand),
		Category:    firstNonEmpty(c.Category, bag.Category),
		Description: cleaner.TruncateRunes(firstNonEmpty(c.Description, bag.DescriptionText), maxDescriptionRunes),
	}

	lo, hi, ok := extractor.MinMax(bag.PriceCandidates)
	switch {
	case ok && lo != hi:
		p.Price, p.OriginalPrice = lo, hi
	case ok:
		p.Price = lo
		p.OriginalPrice = maxOf(lo, float64(c.OriginalPrice), deref(bag.OriginalPrice))
	case c.Price > 0:
		p.Price = float64(c.Price)
		p.OriginalPrice = maxOf(p.Price, float64(c.OriginalPrice), deref(bag.OriginalPrice))
	default:
		return nil, models.NewScrapeError(models.ErrCodePriceMissing, "no positive price in model reply or extracted signals", nil)
	}

	p.Images = httpImages(c.Images)
	if len(p.Images) == 0 {
		p.Images = append([]string(nil), bag.Images...)
	}
	if p.Images == nil {
		p.Images = []string{}
	}

	if w := float64(c.Weight); w > 0 && w <= maxPlausibleWeightKg {
		p.Weight = w
	} else {
		p.Weight = WeightFor(p.Category, p.Name)
	}

	p.Options = []models.ProductOption{}
	if len(c.Options) > 0 {
		for _, o := range c.Options {
			if name := strings.TrimSpace(o.Name); name != "" {
				p.Options = append(p.Options, models.ProductOption{Name: name, Price: positiveOr(float64(o.Price), p.Price), SoldOut: o.SoldOut})
			}
		}
	} else {
		for _, o := range bag.Options {
			p.Options = append(p.Options, models.ProductOption{Name: o.Name, Price: positiveOr(o.Price, p.Price), SoldOut: o.SoldOut})
		}
	}

	return p, nil
}

// Deterministic builds a record from extracted signals alone.
func Deterministic(bag *models.SignalBag) (*models.NormalizedProduct, error) {
	return validate(candidate{}, bag)
}

func httpImages(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, raw := range in {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		s := u.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func maxOf(vals ...float64) float64 {
	m := 0.0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func positiveOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
