package extractor

import (
	"testing"

	"github.com/kjd1374/shopping-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(url, html string) *models.RenderedPage {
	return &models.RenderedPage{HTML: html, FinalURL: url, StatusCode: 200}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"19,000원", 19000, true},
		{"₩ 12,900", 12900, true},
		{"1,234,567", 1234567, true},
		{"정가 0원 / 판매가 8,500원", 8500, true},
		{"12.5", 12.5, true},
		{"30% 19,000원", 19000, true},
		{"30%19,000원", 19000, true},
		{"10 % 할인", 0, false},
		{"2개 구매 시 KRW 24,000", 24000, true},
		{"리뷰 120 9,900원", 9900, true},
		{"가격 문의", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParsePrice(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestMinMax(t *testing.T) {
	lo, hi, ok := MinMax([]float64{89000, 0, 50000, 50000})
	require.True(t, ok)
	assert.Equal(t, 50000.0, lo)
	assert.Equal(t, 89000.0, hi)

	_, _, ok = MinMax([]float64{0, -1})
	assert.False(t, ok)
}

func TestExtract_StructuredBeatsSelectors(t *testing.T) {
	html := `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"BreadcrumbList"},
  {"@type":"Product","name":"독도 토너","brand":{"@type":"Brand","name":"라운드랩"},
   "category":"스킨케어","image":["//img.test/p.jpg"],
   "offers":{"@type":"AggregateOffer","lowPrice":"50000","highPrice":89000,"priceCurrency":"KRW"}}
]}
</script></head>
<body><h1>다른 이름</h1><span class="price">45,000원</span></body></html>`

	bag, err := New(Options{}).Extract(page("https://shop.test/p/1", html), models.FamilyProductDetail)
	require.NoError(t, err)

	assert.Equal(t, "독도 토너", bag.Title)
	assert.Equal(t, "라운드랩", bag.Brand)
	assert.Equal(t, "스킨케어", bag.Category)
	assert.Equal(t, []float64{50000, 89000}, bag.PriceCandidates)
	assert.Equal(t, models.PriceSourceStructured, bag.PriceSource)
	assert.Contains(t, bag.Images, "https://img.test/p.jpg")
}

func TestExtract_SiteProfileSelectors(t *testing.T) {
	html := `<html><body>
<p class="prd_brand"><a id="moveBrandShop">라운드랩</a></p>
<p class="prd_name">1025 독도 토너 200ml</p>
<div class="price">
  <span class="price-1"><strike>89,000</strike>원</span>
  <span class="price-2"><strong>50,000</strong>원</span>
</div>
<img id="mainImg" src="https://image.oliveyoung.co.kr/uploads/a.jpg">
</body></html>`

	bag, err := New(Options{}).Extract(page("https://www.oliveyoung.co.kr/store/goods/getGoodsDetail.do?goodsNo=A1", html), models.FamilyProductDetail)
	require.NoError(t, err)

	assert.Equal(t, "1025 독도 토너 200ml", bag.Title)
	assert.Equal(t, "라운드랩", bag.Brand)
	assert.Equal(t, []float64{50000}, bag.PriceCandidates)
	assert.Equal(t, models.PriceSourceSelector, bag.PriceSource)
	require.NotNil(t, bag.OriginalPrice)
	assert.Equal(t, 89000.0, *bag.OriginalPrice)
	assert.Equal(t, []string{"https://image.oliveyoung.co.kr/uploads/a.jpg"}, bag.Images)
}

func TestExtract_DiscountRateIsNotAPrice(t *testing.T) {
	html := `<html><body><h1>린넨 셔츠</h1>
<div class="product-price"><span>30%</span> <span>19,000원</span></div>
<del>27,000원</del>
</body></html>`

	bag, err := New(Options{}).Extract(page("https://shop.test/goods/3", html), models.FamilyProductDetail)
	require.NoError(t, err)

	assert.Equal(t, []float64{19000}, bag.PriceCandidates)
	require.NotNil(t, bag.OriginalPrice)
	assert.Equal(t, 27000.0, *bag.OriginalPrice)

	lo, _, ok := MinMax(bag.PriceCandidates)
	require.True(t, ok)
	assert.Equal(t, 19000.0, lo)
}

func TestExtract_HiddenInputFallback(t *testing.T) {
	html := `<html><body><h1>무지 티셔츠</h1>
<form><input type="hidden" name="goods_no" value="12345"><input type="hidden" id="salePrice" value="19900"></form>
</body></html>`

	bag, err := New(Options{}).Extract(page("https://shop.test/goods/9", html), models.FamilyProductDetail)
	require.NoError(t, err)

	assert.Equal(t, []float64{19900}, bag.PriceCandidates)
	assert.Equal(t, models.PriceSourceHidden, bag.PriceSource)
}

func TestExtract_ImagesNormalizedAndFiltered(t *testing.T) {
	html := `<html><body><h1>상품</h1>
<div class="thumb">
  <img src="//img.test/a.jpg">
  <img src="/b.jpg">
  <img src="//img.test/a.jpg">
  <img src="/pixel.gif" width="1" height="1">
  <img src="/blank.gif" data-src="/lazy.jpg">
  <img src="data:image/png;base64,AAAA">
</div></body></html>`

	bag, err := New(Options{}).Extract(page("https://shop.test/p/2", html), models.FamilyProductDetail)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://img.test/a.jpg",
		"https://shop.test/b.jpg",
		"https://shop.test/lazy.jpg",
	}, bag.Images)
}

func TestExtract_Options(t *testing.T) {
	html := `<html><body><h1>세럼</h1><span itemprop="price">20,000원</span>
<select name="opt">
  <option value="">옵션 선택</option>
  <option value="1">50ml</option>
  <option value="2" disabled>100ml (+2,000원) (품절)</option>
</select></body></html>`

	bag, err := New(Options{}).Extract(page("https://shop.test/p/3", html), models.FamilyProductDetail)
	require.NoError(t, err)

	assert.Equal(t, []models.OptionSignal{
		{Name: "50ml"},
		{Name: "100ml", Price: 22000, SoldOut: true},
	}, bag.Options)
}

func TestExtract_TextIsBounded(t *testing.T) {
	long := ""
	for i := 0; i < 500; i++ {
		long += "피부 진정과 보습에 효과적인 성분을 담았습니다. "
	}
	html := `<html><body><h1>크림</h1><article><p>` + long + `</p></article></body></html>`

	bag, err := New(Options{MaxTextRunes: 300}).Extract(page("https://shop.test/p/4", html), models.FamilyProductDetail)
	require.NoError(t, err)

	assert.NotEmpty(t, bag.DescriptionText)
	assert.LessOrEqual(t, len([]rune(bag.DescriptionText)), 300)
	assert.LessOrEqual(t, len([]rune(bag.RawDetailText)), 300)
	assert.Empty(t, bag.PriceCandidates)
}

func TestExtract_RankingList(t *testing.T) {
	html := `<html><body><ul class="cate_prd_list">
<li><div class="prd_info">
  <a class="prd_thumb" href="/store/goods/getGoodsDetail.do?goodsNo=A1"><span class="thumb_flag best">1</span><img src="https://image.oliveyoung.co.kr/a1.jpg"></a>
  <div class="prd_name"><a href="/store/goods/getGoodsDetail.do?goodsNo=A1"><span class="tx_brand">라운드랩</span><p class="tx_name">독도 토너</p></a></div>
</div></li>
<li><div class="prd_info">
  <a class="prd_thumb" href="/store/goods/getGoodsDetail.do?goodsNo=A2"><span class="thumb_flag best">2</span><img data-original="//image.oliveyoung.co.kr/a2.jpg" src="/blank.gif"></a>
  <div class="prd_name"><span class="tx_brand">토리든</span><p class="tx_name">다이브인 세럼</p></div>
</div></li>
<li><div class="prd_info"><span class="tx_brand">광고</span></div></li>
<li><div class="prd_info">
  <a class="prd_thumb" href="/store/goods/getGoodsDetail.do?goodsNo=A3"><img src="https://image.oliveyoung.co.kr/a3.jpg"></a>
  <p class="tx_name">선크림</p>
</div></li>
</ul></body></html>`

	bag, err := New(Options{}).Extract(page("https://www.oliveyoung.co.kr/store/main/getBestList.do", html), models.FamilyRankingList)
	require.NoError(t, err)
	require.Len(t, bag.Listings, 3)

	first := bag.Listings[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "독도 토너", first.Title)
	assert.Equal(t, "라운드랩", first.Brand)
	assert.Equal(t, "https://www.oliveyoung.co.kr/store/goods/getGoodsDetail.do?goodsNo=A1", first.OriginURL)
	assert.Equal(t, "https://image.oliveyoung.co.kr/a1.jpg", first.Image)

	assert.Equal(t, 2, bag.Listings[1].Rank)
	assert.Equal(t, "https://image.oliveyoung.co.kr/a2.jpg", bag.Listings[1].Image)
	assert.Equal(t, 3, bag.Listings[2].Rank)
	assert.Equal(t, "선크림", bag.Listings[2].Title)
}

func TestExtract_Empty(t *testing.T) {
	x := New(Options{})

	_, err := x.Extract(page("https://shop.test/p", `<html><body><div></div></body></html>`), models.FamilyProductDetail)
	assert.Equal(t, models.ErrCodeExtraction, models.CodeOf(err))

	_, err = x.Extract(page("https://www.oliveyoung.co.kr/store/main/getBestList.do", `<html><body><p>점검 중</p></body></html>`), models.FamilyRankingList)
	assert.Equal(t, models.ErrCodeExtraction, models.CodeOf(err))

	_, err = x.Extract(&models.RenderedPage{}, models.FamilyProductDetail)
	assert.Equal(t, models.ErrCodeExtraction, models.CodeOf(err))
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, "oliveyoung", ProfileFor("https://m.oliveyoung.co.kr/m/goods/1").Name)
	assert.Equal(t, "musinsa", ProfileFor("https://www.musinsa.com/products/1").Name)
	assert.Equal(t, "generic", ProfileFor("https://notoliveyoung.co.kr.evil.test/").Name)
	assert.Equal(t, "generic", ProfileFor("::").Name)
}
