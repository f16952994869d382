package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/metrics"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/maltedev/catalog-scraper/internal/wait"
)

// ProductExtractor reads one product detail page into a ProductRecord.
type ProductExtractor struct {
	sel     Selectors
	opts    Options
	run     *runlog.Run
	reviews *ReviewPaginator
	stages  stageRunner
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewProductExtractor(run *runlog.Run, sel Selectors, opts Options, m *metrics.Collector, logger *slog.Logger) *ProductExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "product_extractor")
	return &ProductExtractor{
		sel:     sel,
		opts:    opts,
		run:     run,
		reviews: NewReviewPaginator(run, sel, opts, logger),
		stages:  stageRunner{run: run, metrics: m, logger: logger},
		metrics: m,
		logger:  logger,
	}
}

// Extract opens productURL and runs every stage against it. It returns an
// error wrapping ErrNavigation only when the page fails to load, or the
// context error on cancellation. A nil record with a nil error means the
// page lacked a mandatory field and was dropped.
func (x *ProductExtractor) Extract(ctx context.Context, page browser.Page, productURL string) (*models.ProductRecord, error) {
	if err := page.Goto(productURL); err != nil {
		x.run.LogError(fmt.Sprintf("Failed to open (%s)", productURL), err)
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigation, productURL, err)
	}
	x.run.LogExecution(fmt.Sprintf("Navigate to URL (%s)", productURL))

	if err := wait.Sleep(ctx, x.opts.SettleDelay); err != nil {
		return nil, err
	}

	rec := models.NewProductRecord(productURL)

	if v, ok := runStage(ctx, x.stages, StageBreadcrumb, "Breadcrumb not found", func() (string, error) {
		return x.breadcrumb(page)
	}); ok {
		rec.Breadcrumb = v
		x.run.LogExecution(fmt.Sprintf("Breadcrumb: %s", v))
	}

	if v, ok := runStage(ctx, x.stages, StageCategory, "Category not found", func() (string, error) {
		return x.firstText(page, x.sel.Category)
	}); ok {
		rec.Category = v
		x.run.LogExecution(fmt.Sprintf("Category: %s", v))
	}

	if v, ok := runStage(ctx, x.stages, StageImage, "Image url not found", func() (string, error) {
		return x.image(page)
	}); ok {
		rec.ImageURL = v
		x.run.LogExecution(fmt.Sprintf("Image URL: %s", v))
	}

	if v, ok := runStage(ctx, x.stages, StageTitle, "Product title not found", func() (string, error) {
		return x.title(page)
	}); ok {
		rec.Title = v
		x.run.LogExecution(fmt.Sprintf("Product: %s", v))
	}

	if v, ok := runStage(ctx, x.stages, StagePrice, "Price not found", func() (string, error) {
		return x.price(page)
	}); ok {
		rec.Price = v
		x.run.LogExecution(fmt.Sprintf("Price: %s", v))
	}

	if v, ok := runStage(ctx, x.stages, StageSizes, "Available sizes not found", func() ([]string, error) {
		return x.sizes(page)
	}); ok {
		rec.Sizes = v
		x.run.LogExecution(fmt.Sprintf("Available Sizes: %s", strings.Join(v, ", ")))
	}

	if v, ok := runStage(ctx, x.stages, StageSizeChart, "Error reading size guide", func() (models.SizeChart, error) {
		return x.sizeChart(page)
	}); ok {
		rec.SizeChart = v
		x.run.LogExecution(models.MarshalText(v))
	}

	if v, ok := runStage(ctx, x.stages, StageReviews, "Error finding in review container", func() (ReviewSummary, error) {
		return x.reviews.Collect(ctx, page)
	}); ok {
		rec.Rating = v.Rating
		rec.ReviewCount = v.Count
		rec.Reviews = v.Reviews
	}

	if v, ok := runStage(ctx, x.stages, StageDescription, "Error finding in description container", func() ([2]string, error) {
		return x.description(page)
	}); ok {
		rec.DescriptionTitle, rec.Description = v[0], v[1]
		x.run.LogExecution(fmt.Sprintf("Title of description: %s", v[0]))
		x.run.LogExecution(fmt.Sprintf("Description: %s", v[1]))
	}

	if v, ok := runStage(ctx, x.stages, StageSpecifications, "Error extracting specifications", func() (string, error) {
		return x.specifications(page)
	}); ok {
		rec.Itemization = v
		x.run.LogExecution("General Description (itemization):\n" + v)
	}

	// Last: it navigates away from the product page.
	if v, ok := runStage(ctx, x.stages, StageCoordinated, "Error handling coordinated products", func() ([]models.CoordinatedItem, error) {
		return x.coordinated(ctx, page)
	}); ok {
		rec.CoordinatedItems = v
		x.run.LogExecution("All coordinated items info JSON:\n" + models.MarshalText(v))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if missing := rec.MissingFields(); len(missing) > 0 {
		x.logger.Warn("dropping product with missing fields", "url", productURL, "missing", missing)
		x.run.LogExecution(fmt.Sprintf("Skipped (%s): missing %s", productURL, strings.Join(missing, ", ")))
		return nil, nil
	}

	return rec, nil
}

func (x *ProductExtractor) breadcrumb(page browser.Page) (string, error) {
	if _, err := page.WaitForSelector(x.sel.Breadcrumb, browser.StateAttached, x.opts.WaitTimeout); err != nil {
		return "", err
	}
	items, err := page.QuerySelectorAll(x.sel.Breadcrumb)
	if err != nil {
		return "", err
	}

	var names []string
	// The first crumb is the site root.
	for i, item := range items {
		if i == 0 {
			continue
		}
		name, err := browser.TextOf(item, x.sel.BreadcrumbName)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return strings.Join(names, " / "), nil
}

func (x *ProductExtractor) firstText(page browser.Page, selector string) (string, error) {
	el, err := page.WaitForSelector(selector, browser.StateAttached, x.opts.WaitTimeout)
	if err != nil {
		return "", err
	}
	text, err := el.TextContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (x *ProductExtractor) image(page browser.Page) (string, error) {
	el, err := page.WaitForSelector(x.sel.Image, browser.StateAttached, x.opts.WaitTimeout)
	if err != nil {
		return "", err
	}
	src, err := el.GetAttribute("src")
	if err != nil {
		return "", err
	}
	return resolveURL(page.URL(), src), nil
}

// textWithFallback reads textContent and, when that is empty, asks the
// script engine for it directly.
func textWithFallback(el browser.Element) (string, error) {
	text, err := el.TextContent()
	if err != nil {
		return "", err
	}
	if text = strings.TrimSpace(text); text != "" {
		return text, nil
	}
	text, err = el.ScriptText()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (x *ProductExtractor) title(page browser.Page) (string, error) {
	el, err := page.WaitForSelector(x.sel.Title, browser.StateAttached, x.opts.WaitTimeout)
	if err != nil {
		return "", err
	}
	return textWithFallback(el)
}

func (x *ProductExtractor) price(page browser.Page) (string, error) {
	el, err := page.WaitForSelector(x.sel.Price, browser.StateAttached, x.opts.WaitTimeout)
	if err != nil {
		return "", err
	}
	spans, err := el.QuerySelectorAll(x.sel.PriceSpan)
	if err != nil {
		return "", err
	}
	if len(spans) < 2 {
		return "", fmt.Errorf("price element has %d spans, want at least 2", len(spans))
	}
	return textWithFallback(spans[1])
}

func (x *ProductExtractor) sizes(page browser.Page) ([]string, error) {
	if _, err := page.WaitForSelector(x.sel.SizeButton, browser.StateAttached, x.opts.WaitTimeout); err != nil {
		return nil, err
	}
	buttons, err := page.QuerySelectorAll(x.sel.SizeButton)
	if err != nil {
		return nil, err
	}

	sizes := make([]string, 0, len(buttons))
	for _, b := range buttons {
		class, _ := b.GetAttribute("class")
		if strings.Contains(class, "unavailable") {
			continue
		}
		label, err := b.QuerySelector(x.sel.SizeLabel)
		if err != nil {
			continue
		}
		text, err := label.InnerText()
		if err != nil {
			continue
		}
		sizes = append(sizes, strings.TrimSpace(text))
	}
	return sizes, nil
}

// sizeChart opens the size guide modal, parses its tables from the rendered
// markup and closes the modal again whatever the parse outcome.
func (x *ProductExtractor) sizeChart(page browser.Page) (models.SizeChart, error) {
	btn, err := page.WaitForSelector(x.sel.SizeChartButton, browser.StateVisible, x.opts.WaitTimeout)
	if err != nil {
		return nil, err
	}
	if err := browser.ScrollAndClick(btn, "start", x.opts.WaitTimeout); err != nil {
		return nil, err
	}
	defer x.closeSizeChart(page)

	if _, err := page.WaitForSelector(x.sel.SizeChartModal, browser.StateVisible, x.opts.WaitTimeout); err != nil {
		return nil, err
	}
	if _, err := page.WaitForSelector(x.sel.SizeChartTable, browser.StateAttached, x.opts.WaitTimeout); err != nil {
		return nil, err
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	return parser.ParseSizeChart(content, x.sel.SizeChartModal)
}

func (x *ProductExtractor) closeSizeChart(page browser.Page) {
	btn, err := page.WaitForSelector(x.sel.SizeChartClose, browser.StateVisible, x.opts.WaitTimeout)
	if err != nil {
		x.logger.Warn("size chart close button not found", "error", err)
		return
	}
	if err := browser.Click(btn, x.opts.WaitTimeout); err != nil {
		x.logger.Warn("failed to close size chart", "error", err)
	}
}

func (x *ProductExtractor) description(page browser.Page) ([2]string, error) {
	section, err := page.WaitForSelector(x.sel.DescriptionSection, browser.StateAttached, x.opts.WaitTimeout)
	if err != nil {
		return [2]string{}, err
	}
	markup, err := section.InnerHTML()
	if err != nil {
		return [2]string{}, err
	}
	title, body, err := parser.ParseDescription(markup)
	if err != nil {
		return [2]string{}, err
	}
	return [2]string{title, body}, nil
}

func (x *ProductExtractor) specifications(page browser.Page) (string, error) {
	section, err := page.WaitForSelector(x.sel.SpecSection, browser.StateAttached, x.opts.WaitTimeout)
	if err != nil {
		return "", err
	}
	if _, err := page.WaitForSelector(x.sel.SpecItem, browser.StateAttached, x.opts.WaitTimeout); err != nil {
		return "", err
	}
	markup, err := section.InnerHTML()
	if err != nil {
		return "", err
	}
	return parser.ParseSpecifications(markup, x.opts.OriginMarker)
}
