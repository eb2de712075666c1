package models

import "time"

// SiteFamily selects the extraction strategy for a page.
type SiteFamily string

const (
	// FamilyRankingList is a best-seller list page with many items.
	FamilyRankingList SiteFamily = "ranking"

	// FamilyProductDetail is a single product page.
	FamilyProductDetail SiteFamily = "product"
)

// ScrapeTarget is a single page to fetch. It is created per job and never
// persisted.
type ScrapeTarget struct {
	URL      string
	Family   SiteFamily
	Category string // optional category label
}

// RenderedPage is the HTML after navigation has settled.
type RenderedPage struct {
	HTML       string
	FinalURL   string
	StatusCode int
}

// Price source tags, in descending trust order.
const (
	PriceSourceStructured = "structured" // JSON-LD / Open Graph
	PriceSourceSelector   = "selector"   // site-profile CSS probes
	PriceSourceHidden     = "hidden"     // hidden form inputs
)

// OptionSignal is a purchasable variant found on the page.
type OptionSignal struct {
	Name    string  `json:"name"`
	Price   float64 `json:"price,omitempty"`
	SoldOut bool    `json:"soldOut,omitempty"`
}

// ListingSignal is one item of a ranking list page.
type ListingSignal struct {
	Rank      int    `json:"rank"`
	Title     string `json:"title"`
	Brand     string `json:"brand,omitempty"`
	Image     string `json:"image,omitempty"`
	OriginURL string `json:"originUrl"`
}

// SignalBag collects extraction candidates of uncertain reliability.
// Every field may be empty; consumers must treat each one as optional.
type SignalBag struct {
	SourceURL string `json:"sourceUrl,omitempty"`

	Title    string `json:"title,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`

	// PriceCandidates holds the numeric prices of the highest-trust tier
	// that produced any. PriceSource names that tier.
	PriceCandidates []float64 `json:"priceCandidates,omitempty"`
	PriceSource     string    `json:"priceSource,omitempty"`

	// OriginalPrice is an explicit list price (struck-through markup or
	// structured metadata), when the page exposes one.
	OriginalPrice *float64 `json:"originalPrice,omitempty"`

	Images  []string       `json:"images,omitempty"`
	Options []OptionSignal `json:"options,omitempty"`

	// DescriptionText is a readable summary of the main content.
	DescriptionText string `json:"descriptionText,omitempty"`

	// RawDetailText is bounded visible text, only ever used as model context.
	RawDetailText string `json:"rawDetailText,omitempty"`

	// Listings is populated for ranking-list pages only.
	Listings []ListingSignal `json:"listings,omitempty"`
}

// Empty reports whether the bag holds no usable product signal.
func (b *SignalBag) Empty() bool {
	if b == nil {
		return true
	}
	return b.Title == "" && len(b.PriceCandidates) == 0 && len(b.Images) == 0 && len(b.Listings) == 0
}

// ProductOption is a normalized variant.
type ProductOption struct {
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
	SoldOut bool    `json:"soldOut,omitempty"`
}

// NormalizedProduct is the reconciled product record.
// Price is always > 0 and OriginalPrice >= Price.
type NormalizedProduct struct {
	Name          string          `json:"name"`
	Brand         string          `json:"brand"`
	Price         float64         `json:"price"`
	OriginalPrice float64         `json:"originalPrice"`
	Images        []string        `json:"images"`
	Category      string          `json:"category"`
	Weight        float64         `json:"weight"`
	Options       []ProductOption `json:"options"`
	Description   string          `json:"description"`
}

// RankedListing is one persisted row of a ranking partition.
type RankedListing struct {
	Rank        int       `json:"rank" db:"rank"`
	Title       string    `json:"title" db:"title"`
	Brand       string    `json:"brand" db:"brand"`
	Image       string    `json:"image" db:"image"`
	OriginURL   string    `json:"originUrl" db:"origin_url"`
	CategoryKey string    `json:"categoryKey" db:"product_type"`
	CapturedAt  time.Time `json:"capturedAt" db:"updated_at"`
}

// PartitionKey builds the product_type value for a (site, category) pair.
func PartitionKey(site, category string) string {
	return site + "_" + category
}
