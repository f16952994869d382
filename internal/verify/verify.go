// Package verify checks that an expected label is present on the current
// page, exactly or approximately, and records a screenshot either way.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/maltedev/catalog-scraper/internal/wait"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

type Method string

const (
	MethodExact Method = "exact"
	MethodFuzzy Method = "fuzzy"
	MethodNone  Method = "none"
)

// DefaultThreshold is the similarity ratio a fuzzy match must exceed.
const DefaultThreshold = 0.75

type Outcome struct {
	Matched    bool
	Method     Method
	Score      float64
	Screenshot string
}

type Engine struct {
	run         *runlog.Run
	threshold   float64
	settle      time.Duration
	waitTimeout time.Duration
	logger      *slog.Logger
}

type Options struct {
	Threshold   float64
	Settle      time.Duration
	WaitTimeout time.Duration
}

func NewEngine(run *runlog.Run, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Engine{
		run:         run,
		threshold:   opts.Threshold,
		settle:      opts.Settle,
		waitTimeout: opts.WaitTimeout,
		logger:      logger.With("component", "verify"),
	}
}

// Verify never fails: faults and panics are written to the error log and
// reported as an unmatched outcome.
func (e *Engine) Verify(ctx context.Context, page browser.Page, expected string) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			e.run.LogError(fmt.Sprintf("Error during verification of %q", expected), errors.Errorf("panic in verification: %v", p))
			out = Outcome{
				Method:     MethodNone,
				Screenshot: e.screenshot(ctx, page, expected+"_error", runlog.OutcomeError),
			}
		}
	}()

	if err := wait.Sleep(ctx, e.settle); err != nil {
		e.run.LogError(fmt.Sprintf("Error during verification of %q", expected), err)
		return Outcome{Method: MethodNone}
	}

	content, err := page.Content()
	if err != nil {
		e.run.LogError(fmt.Sprintf("Error during verification of %q", expected), err)
		return Outcome{
			Method:     MethodNone,
			Screenshot: e.screenshot(ctx, page, expected+"_error", runlog.OutcomeError),
		}
	}

	text, err := PageText(content)
	if err != nil {
		e.run.LogError(fmt.Sprintf("Error during verification of %q", expected), err)
		return Outcome{
			Method:     MethodNone,
			Screenshot: e.screenshot(ctx, page, expected+"_error", runlog.OutcomeError),
		}
	}

	method, score := Match(text, expected, e.threshold)
	out = Outcome{Matched: method != MethodNone, Method: method, Score: score}

	switch method {
	case MethodExact:
		e.run.LogExecution(fmt.Sprintf("Expected text found: %s", expected))
		out.Screenshot = e.screenshot(ctx, page, "found_"+expected, runlog.OutcomeSuccess)
	case MethodFuzzy:
		e.run.LogExecution(fmt.Sprintf("Expected text matched approximately: %s (score %.2f)", expected, score))
		out.Screenshot = e.screenshot(ctx, page, "fuzzy_"+expected, runlog.OutcomeSuccess)
	default:
		e.run.LogError(fmt.Sprintf("Expected text not found: %s (score %.2f)", expected, score), nil)
		out.Screenshot = e.screenshot(ctx, page, "not_found_"+expected, runlog.OutcomeError)
	}

	return out
}

func (e *Engine) screenshot(ctx context.Context, page browser.Page, label string, outcome runlog.Outcome) string {
	path, err := e.run.ScreenshotPath(label, outcome)
	if err != nil {
		e.logger.Warn("failed to prepare screenshot path", "label", label, "error", err)
		return ""
	}
	if err := browser.CaptureScreenshot(ctx, page, path, e.waitTimeout, e.logger); err != nil {
		e.logger.Warn("failed to capture screenshot", "label", label, "error", err)
		return ""
	}
	return path
}

// Match compares expected against the page text after normalizing both.
// A substring hit is exact; otherwise the similarity ratio must exceed
// threshold.
func Match(pageText, expected string, threshold float64) (Method, float64) {
	haystack := Normalize(pageText)
	needle := Normalize(expected)

	if strings.Contains(haystack, needle) {
		return MethodExact, 1
	}

	score := Similarity(needle, haystack)
	if score > threshold {
		return MethodFuzzy, score
	}
	return MethodNone, score
}

// Normalize applies NFKC and collapses whitespace runs to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

// Similarity is the difflib ratio of a and b compared rune by rune.
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(runes(a), runes(b))
	return m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// PageText concatenates the non-blank text nodes of <body> in document order.
func PageText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				b.WriteString(n.Data)
			}
			return
		case html.ElementNode:
			if skipped[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range doc.Find("body").Nodes {
		walk(n)
	}
	return b.String(), nil
}
