package scraper

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-scraper/internal/browser/browsertest"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productURL = "https://www.adidas.jp/tee/IK9123.html"

const (
	breadcrumbHTML = `<ol data-auto-id="breadcrumbs-desktop">
  <li><a><span property="name">ホーム</span></a></li>
  <li><a><span property="name">メンズ</span></a></li>
  <li><a><span property="name">Tシャツ</span></a></li>
</ol>`
	priceHTML   = `<div data-testid="main-price"><span>価格</span><span>¥5,489</span></div>`
	reviewsHTML = `<section id="navigation-target-reviews">
  <div class="ratings-label-container--x"><span> 4.6 </span></div>
  <div class="reviews-header"><h2>レビュー (3)</h2></div>
  <div id="review-list">
    <div data-auto-id="review">
      <span class="user-name">taro</span><span class="date">2024/01/02</span>
      <div class="stars">
        <div class="gl-star-rating__mask" style="width: 100%"></div><div class="gl-star-rating__mask" style="width: 100%"></div>
        <div class="gl-star-rating__mask" style="width: 100%"></div><div class="gl-star-rating__mask" style="width: 100%"></div>
        <div class="gl-star-rating__mask" style="width: 100%"></div>
      </div>
      <h4>良い</h4><div class="review-text">快適です</div>
    </div>
  </div>
  <button data-auto-id="reviews-load-more">もっと見る</button>
</section>`
	moreReviewsHTML = `<div data-auto-id="review">
  <span class="user-name">hanako</span><span class="date">2024/02/03</span>
  <div class="stars">
    <div class="gl-star-rating__mask" style="width: 100%"></div><div class="gl-star-rating__mask" style="width: 100%"></div>
    <div class="gl-star-rating__mask" style="width: 100%"></div><div class="gl-star-rating__mask" style="width: 49%"></div>
    <div class="gl-star-rating__mask" style="width: 0%"></div>
  </div>
  <h4>普通</h4><div class="review-text">少し大きい</div>
</div>
<div data-auto-id="review">
  <span class="user-name">no-title</span><span class="date">2024/02/04</span>
  <div class="review-text">タイトルなし</div>
</div>`
)

func productPage(omit ...string) string {
	parts := map[string]string{
		"breadcrumb": breadcrumbHTML,
		"category":   `<div data-auto-id="product-category"><span> メンズ オリジナルス </span></div>`,
		"image":      `<picture data-testid="pdp-gallery-picture"><img src="https://assets.adidas.com/IK9123_01.jpg"></picture>`,
		"title":      `<h1 data-auto-id="product-title"><span>アディカラー Tシャツ</span></h1>`,
		"price":      priceHTML,
		"sizes": `<div data-auto-id="size-selector">
  <button class="size"><span>S</span></button>
  <button class="size size--unavailable"><span>M</span></button>
  <button class="size"><span>L</span></button>
</div>`,
		"sizechart": `<button data-auto-id="size-chart-link">サイズガイド</button>
<div id="gl-modal__size-chart-modal" hidden>
  <button id="gl-modal__close-size-chart-modal">×</button>
  <table>
    <thead><tr><th>サイズ</th><th>S</th><th>L</th></tr></thead>
    <tbody><tr><th>胸囲</th><td>85-91</td><td></td></tr></tbody>
  </table>
</div>`,
		"reviews": reviewsHTML,
		"description": `<section id="navigation-target-description">
  <h3>定番のTシャツ</h3><p class="gl-vspace">柔らかなコットン。</p>
</section>`,
		"specifications": `<section id="navigation-target-specifications">
  <ul><li>レギュラーフィット</li><li>綿 100%</li></ul>
  <div class="gl-table__row--body">
    <div class="gl-table__cell"><span class="gl-table__cell-inner">生産国</span></div>
    <div class="gl-table__cell"><span class="gl-table__cell-inner">ベトナム</span></div>
  </div>
</section>`,
		"coordinated": `<div id="gl-carousel-system">
  <a data-testid="style-card" href="/style/1">コーデ1</a>
  <a data-testid="style-card" href="/style/broken">コーデ2</a>
</div>`,
	}
	order := []string{"breadcrumb", "category", "image", "title", "price", "sizes", "sizechart", "reviews", "description", "specifications", "coordinated"}

	skip := map[string]bool{}
	for _, o := range omit {
		skip[o] = true
	}

	var b strings.Builder
	b.WriteString("<html><body>\n")
	for _, name := range order {
		if !skip[name] {
			b.WriteString(parts[name])
			b.WriteString("\n")
		}
	}
	b.WriteString("</body></html>")
	return b.String()
}

const stylePage = `<html><body>
<div data-testid="product-card">
  <a href="/item/HM1234.html"><img src="https://assets.adidas.com/HM1234.jpg"></a>
  <div data-testid="main-price"><span>価格</span><span>¥3,990</span></div>
</div>
<div data-testid="product-card">
  <a href="/item/HM5678.html"><img src="/images/HM5678.jpg"></a>
  <div data-testid="main-price"><span>価格</span><span>¥4,990</span></div>
</div>
<div data-testid="product-card"><span>no link</span></div>
</body></html>`

func newProductPage(markup string) *browsertest.Page {
	page := browsertest.NewPage(map[string]string{
		productURL:                      markup,
		"https://www.adidas.jp/style/1": stylePage,
	})
	page.GotoErrors["https://www.adidas.jp/style/broken"] = errors.New("net::ERR_ABORTED")

	page.OnClick(`button[data-auto-id="size-chart-link"]`, func(doc *goquery.Document, _ *goquery.Selection) {
		doc.Find("#gl-modal__size-chart-modal").RemoveAttr("hidden")
	})
	page.OnClick("#gl-modal__close-size-chart-modal", func(doc *goquery.Document, _ *goquery.Selection) {
		doc.Find("#gl-modal__size-chart-modal").SetAttr("hidden", "")
	})
	page.OnClick(`button[data-auto-id="reviews-load-more"]`, func(doc *goquery.Document, target *goquery.Selection) {
		doc.Find("#review-list").AppendHtml(moreReviewsHTML)
		target.Remove()
	})
	return page
}

func TestProductExtractorExtract(t *testing.T) {
	run := testRun(t)
	page := newProductPage(productPage())
	x := NewProductExtractor(run, DefaultSelectors(), testOptions(), nil, slog.Default())

	rec, err := x.Extract(context.Background(), page, productURL)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, productURL, rec.URL)
	assert.Equal(t, "メンズ / Tシャツ", rec.Breadcrumb)
	assert.Equal(t, "メンズ オリジナルス", rec.Category)
	assert.Equal(t, "https://assets.adidas.com/IK9123_01.jpg", rec.ImageURL)
	assert.Equal(t, "アディカラー Tシャツ", rec.Title)
	assert.Equal(t, "¥5,489", rec.Price)
	assert.Equal(t, []string{"S", "L"}, rec.Sizes)
	assert.Equal(t, models.SizeChart{"胸囲": {{"S": "85-91"}}}, rec.SizeChart)
	assert.Equal(t, "定番のTシャツ", rec.DescriptionTitle)
	assert.Equal(t, "柔らかなコットン。", rec.Description)
	assert.Equal(t, "• レギュラーフィット\n• 綿 100%\n• 生産国: ベトナム", rec.Itemization)

	assert.Equal(t, "4.6", rec.Rating)
	assert.Equal(t, 3, rec.ReviewCount)
	require.Len(t, rec.Reviews, 2)
	assert.Equal(t, models.Review{Date: "2024/01/02", Rating: 5, Title: "良い", Body: "快適です", ReviewerID: "taro"}, rec.Reviews[0])
	assert.Equal(t, 3, rec.Reviews[1].Rating)

	assert.Equal(t, []models.CoordinatedItem{{
		URL:           "https://www.adidas.jp/item/HM1234.html",
		ProductNumber: "HM1234",
		ImageURL:      "https://assets.adidas.com/HM1234.jpg",
		Price:         "¥3,990",
	}, {
		URL:           "https://www.adidas.jp/item/HM5678.html",
		ProductNumber: "HM5678",
		ImageURL:      "https://www.adidas.jp/images/HM5678.jpg",
		Price:         "¥4,990",
	}}, rec.CoordinatedItems)
	assert.Equal(t, 1, page.VisitCount("https://www.adidas.jp/style/broken"))

	data, err := os.ReadFile(run.ExecutionLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Price: ¥5,489.")
	assert.Contains(t, string(data), "Total reviews extracted: 3.")
}

func TestProductExtractorGate(t *testing.T) {
	t.Run("missing price drops the record", func(t *testing.T) {
		run := testRun(t)
		page := newProductPage(productPage("price"))
		x := NewProductExtractor(run, DefaultSelectors(), testOptions(), nil, slog.Default())

		rec, err := x.Extract(context.Background(), page, productURL)
		require.NoError(t, err)
		assert.Nil(t, rec)

		data, err := os.ReadFile(run.ErrorLogPath())
		require.NoError(t, err)
		assert.Contains(t, string(data), "Price not found")
	})

	t.Run("missing reviews keeps the record", func(t *testing.T) {
		page := newProductPage(productPage("reviews"))
		x := NewProductExtractor(testRun(t), DefaultSelectors(), testOptions(), nil, slog.Default())

		rec, err := x.Extract(context.Background(), page, productURL)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Empty(t, rec.Reviews)
		assert.Empty(t, rec.Rating)
		assert.Equal(t, "¥5,489", rec.Price)
	})

	t.Run("missing size chart and coordinated items keep the record", func(t *testing.T) {
		page := newProductPage(productPage("sizechart", "coordinated"))
		x := NewProductExtractor(testRun(t), DefaultSelectors(), testOptions(), nil, slog.Default())

		rec, err := x.Extract(context.Background(), page, productURL)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Empty(t, rec.SizeChart)
		assert.Empty(t, rec.CoordinatedItems)
	})
}

func TestProductExtractorNavigationFailure(t *testing.T) {
	page := newProductPage(productPage())
	page.GotoErrors[productURL] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	x := NewProductExtractor(testRun(t), DefaultSelectors(), testOptions(), nil, slog.Default())

	rec, err := x.Extract(context.Background(), page, productURL)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrNavigation)
}

func TestProductExtractorClosesSizeChartOnFailure(t *testing.T) {
	// A modal without tables makes the stage fail after the modal opened.
	markup := strings.Replace(productPage(), "<table>", "<div>", 1)
	markup = strings.Replace(markup, "</table>", "</div>", 1)
	page := newProductPage(markup)
	x := NewProductExtractor(testRun(t), DefaultSelectors(), testOptions(), nil, slog.Default())

	rec, err := x.Extract(context.Background(), page, productURL)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, rec.SizeChart)
	assert.Contains(t, page.Clicks, "button#gl-modal__close-size-chart-modal")
}

func TestRunStageRecoversPanic(t *testing.T) {
	run := testRun(t)
	r := stageRunner{run: run, logger: slog.Default()}

	v, ok := runStage(context.Background(), r, StagePrice, "Price not found", func() (string, error) {
		var m map[string]string
		m["boom"] = "x"
		return "unreachable", nil
	})
	assert.False(t, ok)
	assert.Empty(t, v)

	data, err := os.ReadFile(run.ErrorLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "panic in price stage")
}
