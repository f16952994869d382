// Package pipeline drives one scraping run: open the catalog, collect product
// addresses, extract each product on a periodically recycled session and
// write the table at the end, whatever happened before.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/metrics"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/runlog"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/maltedev/catalog-scraper/internal/storage"
	"github.com/maltedev/catalog-scraper/internal/verify"
)

type SessionManager interface {
	Start() (browser.Page, error)
	Recycle(ctx context.Context) (browser.Page, error)
	Recycles() int
}

type Verifier interface {
	Verify(ctx context.Context, page browser.Page, expected string) verify.Outcome
}

type LinkCollector interface {
	Collect(ctx context.Context, page browser.Page) ([]string, error)
}

type Extractor interface {
	Extract(ctx context.Context, page browser.Page, productURL string) (*models.ProductRecord, error)
}

// Pacer spaces product visits and adapts to failures.
type Pacer interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

type Options struct {
	EntryURL         string
	CategoryURL      string
	MenuSelector     string
	CategorySelector string
	ViewportWidth    int
	ViewportHeight   int
	WaitTimeout      time.Duration
	RecycleEvery     int
	OutputPath       string
}

type State string

const (
	StatePending    State = "pending"
	StateStarting   State = "starting"
	StateCollecting State = "collecting"
	StateExtracting State = "extracting"
	StateFlushing   State = "flushing"
	StateFinished   State = "finished"
	StateFailed     State = "failed"
)

// Stats is a point-in-time view of the run.
type Stats struct {
	RunID              string    `json:"run_id"`
	State              State     `json:"state"`
	Links              int       `json:"links"`
	Attempted          int       `json:"attempted"`
	Records            int       `json:"records"`
	Dropped            int       `json:"dropped"`
	NavigationFailures int       `json:"navigation_failures"`
	Recycles           int       `json:"recycles"`
	Current            string    `json:"current_url,omitempty"`
	Output             string    `json:"output,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at,omitempty"`
}

type Runner struct {
	run       *runlog.Run
	sessions  SessionManager
	verifier  Verifier
	links     LinkCollector
	extractor Extractor
	sink      *storage.Aggregator
	opts      Options
	pacer     Pacer
	metrics   *metrics.Collector
	logger    *slog.Logger

	mu    sync.RWMutex
	stats Stats
}

func New(run *runlog.Run, sessions SessionManager, verifier Verifier, links LinkCollector, extractor Extractor,
	sink *storage.Aggregator, opts Options, m *metrics.Collector, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RecycleEvery < 1 {
		opts.RecycleEvery = 3
	}
	return &Runner{
		run:       run,
		sessions:  sessions,
		verifier:  verifier,
		links:     links,
		extractor: extractor,
		sink:      sink,
		opts:      opts,
		metrics:   m,
		logger:    logger.With("component", "pipeline"),
		stats:     Stats{RunID: run.ID.String(), State: StatePending},
	}
}

// SetPacer makes the runner wait on p before each product visit.
func (r *Runner) SetPacer(p Pacer) {
	r.pacer = p
}

// Snapshot returns a copy of the current run statistics.
func (r *Runner) Snapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Runner) update(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Run executes the whole run. Once the session has started the product
// table is written on every path, including cancellation. A startup failure
// leaves any existing table untouched. The returned error is the startup
// failure, the table write failure, or the context error.
func (r *Runner) Run(ctx context.Context) (err error) {
	r.update(func(s *Stats) {
		s.State = StateStarting
		s.StartedAt = time.Now()
	})

	defer func() {
		r.update(func(s *Stats) {
			s.FinishedAt = time.Now()
			s.Current = ""
			if err != nil && !errors.Is(err, context.Canceled) {
				s.State = StateFailed
			} else {
				s.State = StateFinished
			}
		})
	}()

	page, err := r.sessions.Start()
	if err != nil {
		r.run.LogError("Failed to start browser session", err)
		return fmt.Errorf("failed to start session: %w", err)
	}

	defer func() {
		if ferr := r.flush(ctx); ferr != nil && err == nil {
			err = ferr
		}
	}()

	r.update(func(s *Stats) { s.State = StateCollecting })
	links, err := r.collect(ctx, page)
	if err != nil {
		return err
	}

	r.update(func(s *Stats) {
		s.State = StateExtracting
		s.Links = len(links)
	})
	r.run.LogExecution(fmt.Sprintf("Product Links: %d", len(links)))

	return r.extractAll(ctx, page, links)
}

// collect reaches the category listing from the entry page and gathers the
// product addresses. Only cancellation is returned as an error.
func (r *Runner) collect(ctx context.Context, page browser.Page) ([]string, error) {
	r.openEntry(ctx, page)

	if err := page.SetViewportSize(r.opts.ViewportWidth, r.opts.ViewportHeight); err != nil {
		r.logger.Warn("failed to resize viewport", "error", err)
	}
	r.run.LogExecution(fmt.Sprintf("Navigate to URL (%s)", r.opts.EntryURL))

	if err := r.openCategory(page); err != nil {
		r.run.LogError("Error finding category link", err)
		if r.opts.CategoryURL == "" {
			r.run.LogExecution("Failed")
			return nil, ctx.Err()
		}
		if err := page.Goto(r.opts.CategoryURL); err != nil {
			r.run.LogError(fmt.Sprintf("Failed to open (%s)", r.opts.CategoryURL), err)
			r.run.LogExecution("Failed")
			return nil, ctx.Err()
		}
		r.run.LogExecution(fmt.Sprintf("Navigate to URL (%s)", r.opts.CategoryURL))
	}

	return r.links.Collect(ctx, page)
}

// openEntry loads the entry page and verifies the menu label it shows.
func (r *Runner) openEntry(ctx context.Context, page browser.Page) {
	if err := page.Goto(r.opts.EntryURL); err != nil {
		r.run.LogError(fmt.Sprintf("Failed to open (%s)", r.opts.EntryURL), err)
		return
	}

	menu, err := page.WaitForSelector(r.opts.MenuSelector, browser.StateAttached, r.opts.WaitTimeout)
	if err != nil {
		r.run.LogError(fmt.Sprintf("Failed to open (%s)", r.opts.EntryURL), err)
		return
	}
	label, err := menu.TextContent()
	if err != nil {
		r.run.LogError("Failed to read menu label", err)
		return
	}

	outcome := r.verifier.Verify(ctx, page, strings.TrimSpace(label))
	r.metrics.ObserveVerification(string(outcome.Method))
}

// openCategory hovers the menu to reveal the category link and clicks it.
func (r *Runner) openCategory(page browser.Page) error {
	menu, err := page.WaitForSelector(r.opts.MenuSelector, browser.StateVisible, r.opts.WaitTimeout)
	if err != nil {
		return fmt.Errorf("menu not visible: %w", err)
	}
	if err := menu.Hover(r.opts.WaitTimeout); err != nil {
		return fmt.Errorf("failed to hover menu: %w", err)
	}

	link, err := page.WaitForSelector(r.opts.CategorySelector, browser.StateVisible, r.opts.WaitTimeout)
	if err != nil {
		return fmt.Errorf("category link not visible: %w", err)
	}
	if err := browser.Click(link, r.opts.WaitTimeout); err != nil {
		return fmt.Errorf("failed to click category link: %w", err)
	}

	r.run.LogExecution("Clicked on category link")
	return nil
}

func (r *Runner) extractAll(ctx context.Context, page browser.Page, links []string) error {
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			r.logger.Info("run interrupted", "remaining", len(links)-i)
			return err
		}

		if r.pacer != nil {
			if err := r.pacer.Wait(ctx); err != nil {
				return err
			}
		}

		index := i + 1
		r.update(func(s *Stats) {
			s.Attempted++
			s.Current = link
		})
		r.metrics.IncAttempted()
		r.run.LogExecution(fmt.Sprintf("[%d] Opened: %s", index, link))

		rec, err := r.extractor.Extract(ctx, page, link)
		if errors.Is(err, scraper.ErrNavigation) {
			r.update(func(s *Stats) { s.NavigationFailures++ })
			r.metrics.IncNavigationFailure()
			if r.pacer != nil {
				r.pacer.RecordError()
			}
			continue
		}
		if err != nil {
			return err
		}
		if r.pacer != nil {
			r.pacer.RecordSuccess()
		}

		if rec == nil {
			r.update(func(s *Stats) { s.Dropped++ })
			r.metrics.IncDropped()
		} else if err := r.sink.Add(rec); err != nil {
			r.logger.Error("failed to add record", "url", link, "error", err)
		} else {
			r.update(func(s *Stats) { s.Records++ })
			r.metrics.IncExtracted()
		}

		if index%r.opts.RecycleEvery == 0 {
			page, err = r.sessions.Recycle(ctx)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.run.LogError("Failed to recycle browser session", err)
				return fmt.Errorf("failed to recycle session: %w", err)
			}
			r.metrics.IncRecycle()
			r.update(func(s *Stats) { s.Recycles = r.sessions.Recycles() })
		}
	}
	return nil
}

// flush writes the table even when ctx is already cancelled.
func (r *Runner) flush(ctx context.Context) error {
	r.update(func(s *Stats) { s.State = StateFlushing })

	if err := r.sink.Flush(context.WithoutCancel(ctx)); err != nil {
		r.run.LogError("Failed to write product table", err)
		return err
	}

	r.update(func(s *Stats) { s.Output = r.opts.OutputPath })
	r.run.LogExecution(fmt.Sprintf("New Excel file created with data: %s", r.opts.OutputPath))
	return nil
}
