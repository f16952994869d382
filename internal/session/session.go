// Package session owns the lifecycle of the single browser session a run
// drives: start, periodic recycle, and close.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/wait"
)

// ErrNotStarted is returned by Recycle before Start.
var ErrNotStarted = errors.New("session not started")

// Session is a running browser process with its context.
type Session interface {
	NewPage() (browser.Page, error)
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(opts browser.Options) (Session, error)
}

// PlaywrightLauncher launches Chromium through playwright.
type PlaywrightLauncher struct{}

func (PlaywrightLauncher) Launch(opts browser.Options) (Session, error) {
	b, err := browser.New(&opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type Manager struct {
	launcher Launcher
	opts     browser.Options
	settle   time.Duration
	logger   *slog.Logger

	recycleImages bool

	mu       sync.Mutex
	current  Session
	page     browser.Page
	recycles int
}

// NewManager returns a manager that launches with opts. settle is the pause
// between closing a session and starting its replacement.
func NewManager(launcher Launcher, opts browser.Options, settle time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		launcher: launcher,
		opts:     opts,
		settle:   settle,
		logger:   logger.With("component", "session"),
	}
}

// Start launches the first session and opens its page.
func (m *Manager) Start() (browser.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.page, nil
	}
	return m.start(m.opts)
}

func (m *Manager) start(opts browser.Options) (browser.Page, error) {
	sess, err := m.launcher.Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser session: %w", err)
	}

	page, err := sess.NewPage()
	if err != nil {
		if cerr := sess.Close(); cerr != nil {
			m.logger.Warn("failed to close session after page error", "error", cerr)
		}
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	m.current = sess
	m.page = page
	m.logger.Info("browser session started", "images_disabled", opts.DisableImages)
	return page, nil
}

// Recycle closes the current session, waits for the settle period and starts
// a fresh one, with image loading disabled unless KeepImagesOnRecycle was
// set. The old page must not be used afterwards.
func (m *Manager) Recycle(ctx context.Context) (browser.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNotStarted
	}

	m.closeLocked()

	if err := wait.Sleep(ctx, m.settle); err != nil {
		return nil, fmt.Errorf("recycle interrupted: %w", err)
	}

	opts := m.opts
	opts.DisableImages = !m.recycleImages
	page, err := m.start(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to restart session: %w", err)
	}

	m.recycles++
	m.logger.Info("browser session recycled", "recycles", m.recycles)
	return page, nil
}

// KeepImagesOnRecycle makes recycled sessions load images like the first one.
func (m *Manager) KeepImagesOnRecycle(keep bool) {
	m.mu.Lock()
	m.recycleImages = keep
	m.mu.Unlock()
}

// Page returns the page of the live session, or nil.
func (m *Manager) Page() browser.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.page
}

// Recycles returns how many times the session was replaced.
func (m *Manager) Recycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recycles
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	var err error
	if m.page != nil {
		if perr := m.page.Close(); perr != nil {
			m.logger.Debug("failed to close page", "error", perr)
		}
	}
	if cerr := m.current.Close(); cerr != nil {
		m.logger.Warn("failed to close browser session", "error", cerr)
		err = fmt.Errorf("failed to close session: %w", cerr)
	}
	m.current = nil
	m.page = nil
	return err
}
