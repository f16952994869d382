package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/parser"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/maltedev/catalog-scraper/internal/wait"
)

type ReviewSummary struct {
	Rating  string
	Count   int
	Reviews []models.Review
}

// ReviewPaginator expands the review section of a product page until no
// more reviews load, then reads every review.
type ReviewPaginator struct {
	sel    Selectors
	opts   Options
	run    *runlog.Run
	logger *slog.Logger
}

func NewReviewPaginator(run *runlog.Run, sel Selectors, opts Options, logger *slog.Logger) *ReviewPaginator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewPaginator{
		sel:    sel,
		opts:   opts,
		run:    run,
		logger: logger.With("component", "review_paginator"),
	}
}

// Collect returns an error only when the review section cannot be opened.
// A missing rating, count or review list leaves that part of the summary
// empty.
func (rp *ReviewPaginator) Collect(ctx context.Context, page browser.Page) (ReviewSummary, error) {
	summary := ReviewSummary{Reviews: make([]models.Review, 0)}

	section, err := page.WaitForSelector(rp.sel.ReviewSection, browser.StateVisible, rp.opts.WaitTimeout)
	if err != nil {
		return summary, fmt.Errorf("review section not found: %w", err)
	}
	if err := browser.ScrollAndClick(section, "center", rp.opts.WaitTimeout); err != nil {
		return summary, fmt.Errorf("failed to open review section: %w", err)
	}

	if rating, err := rp.text(page, rp.sel.Rating); err != nil {
		rp.run.LogError("Error finding overall rating", err)
	} else {
		summary.Rating = rating
		rp.run.LogExecution(fmt.Sprintf("Overall rate: %s", rating))
	}

	if header, err := rp.text(page, rp.sel.ReviewHeader); err != nil {
		rp.run.LogError("Error finding overall Number of reviews", err)
	} else {
		summary.Count, _ = parser.ParseReviewCount(header)
		rp.run.LogExecution(fmt.Sprintf("Number of reviews: %d", summary.Count))
	}

	if err := rp.loadAll(ctx, page); err != nil {
		return summary, err
	}

	if _, err := page.WaitForSelector(rp.sel.Review, browser.StateAttached, rp.opts.WaitTimeout); err != nil {
		rp.run.LogError("Error finding reviews", err)
		return summary, nil
	}

	elements, err := page.QuerySelectorAll(rp.sel.Review)
	if err != nil {
		rp.run.LogError("Error finding reviews", err)
		return summary, nil
	}
	rp.run.LogExecution(fmt.Sprintf("Total reviews extracted: %d", len(elements)))

	for _, el := range elements {
		review, err := rp.parseReview(el)
		if err != nil {
			rp.logger.Warn("error processing a review", "error", err)
			continue
		}
		summary.Reviews = append(summary.Reviews, review)
	}

	return summary, nil
}

// loadAll clicks the load-more control until it disappears or a click adds
// no reviews within the wait bound. Only cancellation is returned.
func (rp *ReviewPaginator) loadAll(ctx context.Context, page browser.Page) error {
	for clicks := 0; ; clicks++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		btn, err := page.WaitForSelector(rp.sel.LoadMoreReviews, browser.StateVisible, rp.opts.WaitTimeout)
		if err != nil {
			rp.logger.Debug("no more load-more button", "clicks", clicks)
			return nil
		}
		if err := btn.ScrollIntoView("center"); err != nil {
			rp.logger.Debug("failed to scroll load-more button", "error", err)
		}

		before := rp.count(page)
		if err := browser.Click(btn, rp.opts.WaitTimeout); err != nil {
			rp.logger.Warn("error clicking load more button", "error", err)
			return nil
		}

		err = wait.Until(ctx, rp.opts.WaitTimeout, rp.opts.PollInterval, func() (bool, error) {
			return rp.count(page) > before, nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			rp.logger.Debug("load-more added no reviews", "before", before)
			return nil
		}

		if err := wait.Sleep(ctx, rp.opts.LoadMorePause); err != nil {
			return err
		}
	}
}

func (rp *ReviewPaginator) count(page browser.Page) int {
	els, err := page.QuerySelectorAll(rp.sel.Review)
	if err != nil {
		return 0
	}
	return len(els)
}

func (rp *ReviewPaginator) text(page browser.Page, selector string) (string, error) {
	el, err := page.WaitForSelector(selector, browser.StateVisible, rp.opts.WaitTimeout)
	if err != nil {
		return "", err
	}
	text, err := el.TextContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (rp *ReviewPaginator) parseReview(el browser.Element) (models.Review, error) {
	var r models.Review
	var err error

	if r.ReviewerID, err = browser.TextOf(el, rp.sel.ReviewerName); err != nil {
		return r, fmt.Errorf("reviewer: %w", err)
	}
	if r.Date, err = browser.TextOf(el, rp.sel.ReviewDate); err != nil {
		return r, fmt.Errorf("date: %w", err)
	}
	if r.Title, err = browser.TextOf(el, rp.sel.ReviewTitle); err != nil {
		return r, fmt.Errorf("title: %w", err)
	}
	if r.Body, err = browser.TextOf(el, rp.sel.ReviewBody); err != nil {
		return r, fmt.Errorf("body: %w", err)
	}

	masks, err := el.QuerySelectorAll(rp.sel.StarMask)
	if err != nil {
		return r, fmt.Errorf("stars: %w", err)
	}
	widths := make([]int, 0, len(masks))
	for _, m := range masks {
		style, err := m.GetAttribute("style")
		if err != nil {
			continue
		}
		if w, ok := parser.FillWidth(style); ok {
			widths = append(widths, w)
		}
	}
	r.Rating = parser.StarRating(widths, rp.opts.StarThreshold)

	return r, nil
}
