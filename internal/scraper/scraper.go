package scraper

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNavigation = errors.New("navigation failed")
	ErrNoProducts = errors.New("no product cards on listing page")
)

// Selectors locate every page element the scrapers touch. All are CSS.
type Selectors struct {
	ProductCard        string
	ProductCardLink    string
	NextPage           string
	AccountModalClose  string
	Breadcrumb         string
	BreadcrumbName     string
	Category           string
	Image              string
	Title              string
	Price              string
	PriceSpan          string
	SizeButton         string
	SizeLabel          string
	SizeChartButton    string
	SizeChartModal     string
	SizeChartTable     string
	SizeChartClose     string
	ReviewSection      string
	Rating             string
	ReviewHeader       string
	LoadMoreReviews    string
	Review             string
	ReviewerName       string
	ReviewDate         string
	ReviewTitle        string
	ReviewBody         string
	StarMask           string
	DescriptionSection string
	SpecSection        string
	SpecItem           string
	StyleCard          string
	CoordinatedCard    string
	CoordinatedLink    string
	CoordinatedImage   string
	CoordinatedPrice   string
}

func DefaultSelectors() Selectors {
	return Selectors{
		ProductCard:        `article[data-testid="plp-product-card"]`,
		ProductCardLink:    `a[data-testid="product-card-image-link"]`,
		NextPage:           `a[data-testid="pagination-next-button"]`,
		AccountModalClose:  `#gl-modal__close-mf-account-portal`,
		Breadcrumb:         `ol[data-auto-id="breadcrumbs-desktop"] li`,
		BreadcrumbName:     `[property="name"]`,
		Category:           `div[data-auto-id="product-category"] span`,
		Image:              `picture[data-testid="pdp-gallery-picture"] img`,
		Title:              `h1[data-auto-id="product-title"] span`,
		Price:              `div[data-testid="main-price"]`,
		PriceSpan:          `span`,
		SizeButton:         `div[data-auto-id="size-selector"] button`,
		SizeLabel:          `span`,
		SizeChartButton:    `button[data-auto-id="size-chart-link"]`,
		SizeChartModal:     `#gl-modal__size-chart-modal`,
		SizeChartTable:     `#gl-modal__size-chart-modal table`,
		SizeChartClose:     `#gl-modal__close-size-chart-modal`,
		ReviewSection:      `#navigation-target-reviews`,
		Rating:             `div[class*="ratings-label-container"] > span`,
		ReviewHeader:       `div[class*="reviews-header"] > h2`,
		LoadMoreReviews:    `button[data-auto-id="reviews-load-more"]`,
		Review:             `[data-auto-id="review"]`,
		ReviewerName:       `span[class*="user-name"]`,
		ReviewDate:         `span[class*="date"]`,
		ReviewTitle:        `h4`,
		ReviewBody:         `div[class*="text"]`,
		StarMask:           `.gl-star-rating__mask`,
		DescriptionSection: `#navigation-target-description`,
		SpecSection:        `#navigation-target-specifications`,
		SpecItem:           `#navigation-target-specifications li`,
		StyleCard:          `#gl-carousel-system a[data-testid="style-card"]`,
		CoordinatedCard:    `[data-testid="product-card"]`,
		CoordinatedLink:    `a`,
		CoordinatedImage:   `img`,
		CoordinatedPrice:   `[data-testid="main-price"] span:nth-child(2)`,
	}
}

// Options tunes waits and derived values shared by the scrapers.
type Options struct {
	WaitTimeout   time.Duration
	PollInterval  time.Duration
	SettleDelay   time.Duration
	LoadMorePause time.Duration
	StarThreshold int
	OriginMarker  string
}

func DefaultOptions() Options {
	return Options{
		WaitTimeout:   60 * time.Second,
		PollInterval:  250 * time.Millisecond,
		SettleDelay:   2 * time.Second,
		LoadMorePause: 500 * time.Millisecond,
		StarThreshold: 50,
		OriginMarker:  "生産国",
	}
}

// resolveURL makes href absolute against the page address.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return href
	}
	return b.ResolveReference(ref).String()
}
