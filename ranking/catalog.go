package ranking

import (
	"fmt"
	"os"
	"strings"

	"github.com/kjd1374/shopping-sub000/models"
	"gopkg.in/yaml.v3"
)

// Category is one ranking list page of a site.
type Category struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

// Catalog is the fixed category list of one ranking source.
type Catalog struct {
	Site string `yaml:"site"`

	// ListSelector is the readiness selector for every list page.
	ListSelector string `yaml:"list_selector"`

	Categories []Category `yaml:"categories"`
}

const oliveyoungBest = "https://www.oliveyoung.co.kr/store/main/getBestList.do?dispCatNo=900000100100001&fltDispCatNo="

// DefaultCatalog is used when no catalog file is configured.
var DefaultCatalog = Catalog{
	Site:         "oliveyoung",
	ListSelector: "ul.cate_prd_list > li",
	Categories: []Category{
		{Key: "skincare", Label: "스킨케어", URL: oliveyoungBest + "10000010001"},
		{Key: "makeup", Label: "메이크업", URL: oliveyoungBest + "10000010002"},
		{Key: "bodycare", Label: "바디케어", URL: oliveyoungBest + "10000010003"},
		{Key: "haircare", Label: "헤어케어", URL: oliveyoungBest + "10000010004"},
		{Key: "fragrance", Label: "향수/디퓨저", URL: oliveyoungBest + "10000010005"},
		{Key: "suncare", Label: "선케어", URL: oliveyoungBest + "10000010011"},
		{Key: "cleansing", Label: "클렌징", URL: oliveyoungBest + "10000010010"},
		{Key: "maskpack", Label: "마스크팩", URL: oliveyoungBest + "10000010009"},
	},
}

// LoadCatalog reads a catalog from a YAML file. An empty path returns a copy
// of DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		c := DefaultCatalog
		c.Categories = append([]Category(nil), DefaultCatalog.Categories...)
		return &c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.Site == "" {
		return fmt.Errorf("catalog: site is required")
	}
	if strings.Contains(c.Site, "_") {
		return fmt.Errorf("catalog: site %q must not contain '_'", c.Site)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("catalog: no categories for site %s", c.Site)
	}
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.Key == "" || cat.URL == "" {
			return fmt.Errorf("catalog: category %d needs key and url", i)
		}
		if seen[cat.Key] {
			return fmt.Errorf("catalog: duplicate category %s", cat.Key)
		}
		seen[cat.Key] = true
	}
	return nil
}

// Lookup returns the category with the given key.
func (c *Catalog) Lookup(key string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Key == key {
			return cat, true
		}
	}
	return Category{}, false
}

// Select returns the categories named by keys, in catalog order. Empty keys
// selects the whole catalog. Unknown keys are an error.
func (c *Catalog) Select(keys []string) ([]Category, error) {
	if len(keys) == 0 {
		return c.Categories, nil
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := c.Lookup(k); !ok {
			return nil, fmt.Errorf("unknown category %q", k)
		}
		want[k] = true
	}
	out := make([]Category, 0, len(want))
	for _, cat := range c.Categories {
		if want[cat.Key] {
			out = append(out, cat)
		}
	}
	return out, nil
}

// PartitionKey is the product_type of a category of this catalog.
func (c *Catalog) PartitionKey(categoryKey string) string {
	return models.PartitionKey(c.Site, categoryKey)
}
