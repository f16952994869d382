package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/metrics"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/maltedev/catalog-scraper/internal/wait"
)

// ListingPaginator walks a category listing page by page and collects the
// product detail addresses in the order they appear.
type ListingPaginator struct {
	sel     Selectors
	opts    Options
	run     *runlog.Run
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewListingPaginator(run *runlog.Run, sel Selectors, opts Options, m *metrics.Collector, logger *slog.Logger) *ListingPaginator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListingPaginator{
		sel:     sel,
		opts:    opts,
		run:     run,
		metrics: m,
		logger:  logger.With("component", "listing_paginator"),
	}
}

// CollectFrom opens listingURL and collects from there.
func (lp *ListingPaginator) CollectFrom(ctx context.Context, page browser.Page, listingURL string) ([]string, error) {
	if err := page.Goto(listingURL); err != nil {
		lp.run.LogError(fmt.Sprintf("Failed to open (%s)", listingURL), err)
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigation, listingURL, err)
	}
	lp.dismissAccountModal(page)
	return lp.Collect(ctx, page)
}

// Collect gathers product addresses from the current page and every page
// reachable through the next-page control. It ends when the control does not
// appear in time, points nowhere new, or fails to load. Only cancellation is
// returned as an error; the links gathered so far are returned with it.
func (lp *ListingPaginator) Collect(ctx context.Context, page browser.Page) ([]string, error) {
	var links []string
	visited := map[string]bool{page.URL(): true}

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return links, err
		}

		found := lp.collectPage(page)
		lp.logger.Info("collected listing page", "page", pageNum, "links", len(found), "url", page.URL())
		links = append(links, found...)
		lp.metrics.IncLinks(len(found))

		next, err := page.WaitForSelector(lp.sel.NextPage, browser.StateAttached, lp.opts.WaitTimeout)
		if err != nil {
			if wait.IsTimeout(err) {
				lp.logger.Info("no more listing pages", "pages", pageNum)
			} else {
				lp.run.LogError("Error finding next page button", err)
			}
			break
		}

		href, err := next.GetAttribute("href")
		if err != nil {
			lp.run.LogError("Error reading next page address", err)
			break
		}
		target := resolveURL(page.URL(), href)
		if target == "" {
			lp.logger.Info("next page button has no address", "pages", pageNum)
			break
		}
		if visited[target] {
			lp.logger.Warn("next page already visited", "url", target)
			break
		}
		visited[target] = true

		if err := page.Goto(target); err != nil {
			lp.run.LogError(fmt.Sprintf("Failed to open (%s)", target), err)
			break
		}
		lp.dismissAccountModal(page)
	}

	return links, nil
}

func (lp *ListingPaginator) collectPage(page browser.Page) []string {
	if _, err := page.WaitForSelector(lp.sel.ProductCard, browser.StateAttached, lp.opts.WaitTimeout); err != nil {
		lp.run.LogError("Error finding product list", fmt.Errorf("%w: %v", ErrNoProducts, err))
		return nil
	}

	cards, err := page.QuerySelectorAll(lp.sel.ProductCard)
	if err != nil {
		lp.run.LogError("Error finding product list", err)
		return nil
	}

	links := make([]string, 0, len(cards))
	for _, card := range cards {
		link, err := card.QuerySelector(lp.sel.ProductCardLink)
		if err != nil {
			lp.run.LogError("Error getting product link", err)
			continue
		}
		href, err := link.GetAttribute("href")
		if err != nil {
			lp.run.LogError("Error getting product link", err)
			continue
		}
		if u := resolveURL(page.URL(), href); u != "" {
			links = append(links, u)
		}
	}
	return links
}

// dismissAccountModal closes the account prompt that appears after some
// page transitions. Absence is the normal case.
func (lp *ListingPaginator) dismissAccountModal(page browser.Page) {
	closeBtn, err := page.QuerySelector(lp.sel.AccountModalClose)
	if err != nil {
		return
	}
	visible, err := closeBtn.IsVisible()
	if err != nil || !visible {
		return
	}
	if err := browser.Click(closeBtn, lp.opts.WaitTimeout); err != nil {
		lp.logger.Warn("failed to close account modal", "error", err)
		return
	}
	lp.logger.Debug("account modal dismissed")
}
