package extractor

import (
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
)

// selectorList is an ordered set of alternatives; the first one that
// yields a non-empty value wins.
type selectorList []cascadia.Selector

func compileAll(sels ...string) selectorList {
	out := make(selectorList, 0, len(sels))
	for _, s := range sels {
		out = append(out, cascadia.MustCompile(s))
	}
	return out
}

// listingProfile locates the items of a ranking list page.
type listingProfile struct {
	Item  selectorList
	Title selectorList
	Brand selectorList
	Image selectorList
	Link  selectorList
	Rank  selectorList
}

// SiteProfile holds the CSS probes for one shop. Probes are tried after
// structured metadata and before hidden inputs.
type SiteProfile struct {
	Name  string
	Hosts []string

	Title         selectorList
	Brand         selectorList
	Category      selectorList
	Price         selectorList
	OriginalPrice selectorList
	Image         selectorList
	Option        selectorList

	// Detail narrows the text handed to the model; empty keeps the page.
	Detail []string

	Listing listingProfile
}

var profiles = []*SiteProfile{
	{
		Name:  "oliveyoung",
		Hosts: []string{"oliveyoung.co.kr"},
		Title: compileAll(".prd_name", "p.prd_name", "#Contents .goods_txt"),
		Brand: compileAll("#moveBrandShop", ".prd_brand a", ".prd_brand"),
		Category: compileAll(
			".loc_history li:last-child a",
			"#midCatNm",
		),
		Price: compileAll(
			".price-2 strong",
			".prd_price .tx_cur .tx_num",
			"#finalPrc",
		),
		OriginalPrice: compileAll(
			".price-1 strike",
			".prd_price .tx_org .tx_num",
		),
		Image: compileAll(
			"#mainImg",
			".prd_thumb_list img",
			".prd-detail-img img",
		),
		Option: compileAll(
			".prd_option_box .option_value",
			"select#buyOpt option",
			".sel_option_list li",
		),
		Detail: []string{"#artcInfo", ".prd_detail_box", "#tempHtml2"},
		Listing: listingProfile{
			Item:  compileAll("ul.cate_prd_list > li", ".TabsConts.on ul li", ".prd_list li"),
			Title: compileAll(".tx_name", ".prd_name"),
			Brand: compileAll(".tx_brand", ".prd_brand"),
			Image: compileAll("a.prd_thumb img", ".prd_thumb img", "img"),
			Link:  compileAll("a.prd_thumb", ".prd_info > a", "a[href]"),
			Rank:  compileAll(".thumb_flag.best", ".num", ".rank"),
		},
	},
	{
		Name:  "musinsa",
		Hosts: []string{"musinsa.com"},
		Title: compileAll("[class*='GoodsName']", "h2.product_title", "h3.product_title"),
		Brand: compileAll("[class*='BrandName']", ".product_article_contents a[href*='/brand/']", "[class*='Brand'] a"),
		Price: compileAll(
			"[class*='CurrentPrice']",
			"#goods_price",
			".product_article_price",
		),
		OriginalPrice: compileAll("[class*='OriginalPrice']", "#normal_price", "del"),
		Image: compileAll(
			"[class*='ImageSlider'] img",
			".product-img img",
			"#bigimg",
		),
		Option: compileAll("select[name*='option'] option", "[class*='Option'] li"),
		Detail: []string{"#detail_view", "[class*='DetailInfo']"},
		Listing: listingProfile{
			Item:  compileAll("[data-item-id]", "li.li_box", "#goodsRankList > li"),
			Title: compileAll("[class*='ProductName']", ".list_info a", ".article_info .list_info"),
			Brand: compileAll("[class*='BrandName']", ".item_title a", ".article_info .item_title"),
			Image: compileAll("img"),
			Link:  compileAll("a[href*='/products/']", "a[href*='/goods/']", "a[href]"),
			Rank:  compileAll("[class*='RankNumber']", ".n-label", ".rank"),
		},
	},
}

var genericProfile = &SiteProfile{
	Name:  "generic",
	Title: compileAll("[itemprop='name']", "h1", ".product-name", ".product_title"),
	Brand: compileAll("[itemprop='brand']", "[class*='brand']"),
	Category: compileAll(
		".breadcrumb li:last-child",
		"[class*='breadcrumb'] a:last-child",
	),
	Price: compileAll(
		"[itemprop='price']",
		"[class*='sale'][class*='price']",
		"[class*='price'] strong",
		"[class*='price']",
	),
	OriginalPrice: compileAll("del", "s", "strike", "[class*='origin'][class*='price']"),
	Image:         compileAll("[itemprop='image']", "[class*='thumb'] img", "[class*='product'] img", "main img"),
	Option:        compileAll("select option"),
	Listing: listingProfile{
		Item:  compileAll("[class*='rank'] li", "ol li", "ul[class*='list'] > li"),
		Title: compileAll("[class*='name']", "[class*='title']", "a"),
		Brand: compileAll("[class*='brand']"),
		Image: compileAll("img"),
		Link:  compileAll("a[href]"),
		Rank:  compileAll("[class*='rank']", "[class*='num']"),
	},
}

// ProfileFor returns the site profile whose host matches rawURL, falling
// back to the generic profile.
func ProfileFor(rawURL string) *SiteProfile {
	u, err := url.Parse(rawURL)
	if err != nil {
		return genericProfile
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range profiles {
		for _, h := range p.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p
			}
		}
	}
	return genericProfile
}
