package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/catalog-scraper/internal/wait"
)

// LoaderSelector is the site-wide spinner that must be gone before a
// screenshot is meaningful.
const LoaderSelector = "#img-loader"

// Click tries a native click first and falls back to a scripted click when
// the element is covered or not yet interactable.
func Click(el Element, timeout time.Duration) error {
	if err := el.Click(timeout); err != nil {
		if serr := el.ScriptClick(); serr != nil {
			return fmt.Errorf("failed to click element: %w (script click: %v)", err, serr)
		}
	}
	return nil
}

// ScrollAndClick brings el into view before clicking it.
func ScrollAndClick(el Element, block string, timeout time.Duration) error {
	if err := el.ScrollIntoView(block); err != nil {
		return fmt.Errorf("failed to scroll element into view: %w", err)
	}
	return Click(el, timeout)
}

// WaitReady blocks until document.readyState is "complete".
func WaitReady(ctx context.Context, page Page, timeout, interval time.Duration) error {
	return wait.Until(ctx, timeout, interval, func() (bool, error) {
		v, err := page.Evaluate("() => document.readyState")
		if err != nil {
			return false, err
		}
		state, _ := v.(string)
		return state == "complete", nil
	})
}

// CaptureScreenshot waits for the page to settle and writes a PNG to path.
// A loader that never disappears is logged and the capture proceeds anyway.
func CaptureScreenshot(ctx context.Context, page Page, path string, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := WaitReady(ctx, page, timeout, wait.DefaultInterval); err != nil {
		logger.Warn("page not fully loaded before screenshot", "error", err)
	}

	if _, err := page.WaitForSelector(LoaderSelector, StateHidden, timeout); err != nil {
		logger.Warn("loader still visible", "selector", LoaderSelector, "error", err)
	}

	if err := page.Screenshot(path); err != nil {
		return fmt.Errorf("failed to save screenshot %s: %w", path, err)
	}
	return nil
}

// TextOf returns the trimmed text content of the first match of selector
// below el, or ErrElementNotFound.
func TextOf(el Element, selector string) (string, error) {
	child, err := el.QuerySelector(selector)
	if err != nil {
		return "", err
	}
	text, err := child.TextContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
