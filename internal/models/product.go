package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Columns is the fixed header of the product table, in cell order.
var Columns = []string{
	"Breadcrumb",
	"Image URL",
	"Category",
	"Product title",
	"Price",
	"Sizes",
	"Size info",
	"Title of description",
	"Description",
	"General description (itemization)",
	"Rating",
	"Number of reviews",
	"User Reviews",
	"Coordinated product info",
}

// SizeChart maps a row label (e.g. "胸囲") to one entry per table the label
// appeared in. Each entry maps a size header to its value; empty values are
// omitted.
type SizeChart map[string][]map[string]string

type ProductRecord struct {
	URL              string            `json:"url"`
	Breadcrumb       string            `json:"breadcrumb"`
	ImageURL         string            `json:"image_url"`
	Category         string            `json:"category"`
	Title            string            `json:"title"`
	Price            string            `json:"price"`
	Sizes            []string          `json:"sizes"`
	SizeChart        SizeChart         `json:"size_chart"`
	DescriptionTitle string            `json:"description_title"`
	Description      string            `json:"description"`
	Itemization      string            `json:"itemization"`
	Rating           string            `json:"rating"`
	ReviewCount      int               `json:"review_count"`
	Reviews          []Review          `json:"reviews"`
	CoordinatedItems []CoordinatedItem `json:"coordinated_items"`
	ScrapedAt        time.Time         `json:"scraped_at"`
}

type Review struct {
	Date       string `json:"date"`
	Rating     int    `json:"rating"`
	Title      string `json:"review_title"`
	Body       string `json:"review_description"`
	ReviewerID string `json:"reviewer_id"`
}

type CoordinatedItem struct {
	URL           string `json:"product_page_url"`
	ProductNumber string `json:"product_number"`
	ImageURL      string `json:"image_url"`
	Price         string `json:"price"`
}

func NewProductRecord(url string) *ProductRecord {
	return &ProductRecord{
		URL:              url,
		Sizes:            make([]string, 0),
		SizeChart:        make(SizeChart),
		Reviews:          make([]Review, 0),
		CoordinatedItems: make([]CoordinatedItem, 0),
		ScrapedAt:        time.Now(),
	}
}

// MissingFields lists the mandatory fields that are empty.
func (p *ProductRecord) MissingFields() []string {
	var missing []string

	if strings.TrimSpace(p.Breadcrumb) == "" {
		missing = append(missing, "breadcrumb")
	}
	if strings.TrimSpace(p.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(p.Price) == "" {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(p.ImageURL) == "" {
		missing = append(missing, "image_url")
	}

	return missing
}

// Complete reports whether the record may be emitted.
func (p *ProductRecord) Complete() bool {
	return len(p.MissingFields()) == 0
}

// Row returns the table cells in Columns order. Sizes are comma-joined;
// nested values are JSON with non-ASCII text left unescaped.
func (p *ProductRecord) Row() []any {
	return []any{
		p.Breadcrumb,
		p.ImageURL,
		p.Category,
		p.Title,
		p.Price,
		strings.Join(p.Sizes, ", "),
		MarshalText(p.SizeChart),
		p.DescriptionTitle,
		p.Description,
		p.Itemization,
		p.Rating,
		p.ReviewCount,
		MarshalText(p.Reviews),
		MarshalText(p.CoordinatedItems),
	}
}

// MarshalText encodes v as compact JSON without HTML escaping.
func MarshalText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}
