// Package runlog owns the per-run artifacts: the JST timestamp fixed at
// start, the execution and error logs, and the screenshot directories.
package runlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "20060102_150405"

// JST is Japan Standard Time. A fixed zone avoids depending on tzdata.
var JST = time.FixedZone("JST", 9*60*60)

// Outcome selects the screenshot subdirectory.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Run is the run-scoped context threaded through every component.
type Run struct {
	ID            uuid.UUID
	Timestamp     string
	BaseDir       string
	ExecutionDir  string
	ErrorDir      string
	ScreenshotDir string

	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// Timestamp formats t in JST as YYYYMMDD_HHMMSS.
func Timestamp(t time.Time) string {
	return t.In(JST).Format(timestampLayout)
}

// New creates the run directories under baseDir.
func New(baseDir string, logger *slog.Logger) (*Run, error) {
	return newRun(baseDir, time.Now, logger)
}

func newRun(baseDir string, now func() time.Time, logger *slog.Logger) (*Run, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ts := Timestamp(now())

	r := &Run{
		ID:            uuid.New(),
		Timestamp:     ts,
		BaseDir:       baseDir,
		ExecutionDir:  filepath.Join(baseDir, "execution_"+ts),
		ErrorDir:      filepath.Join(baseDir, "error_"+ts),
		ScreenshotDir: filepath.Join(baseDir, "screenshots_"+ts),
		now:           now,
		logger:        logger.With("component", "runlog"),
	}

	for _, dir := range []string{r.ExecutionDir, r.ErrorDir, r.ScreenshotDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
		}
	}

	return r, nil
}

// ExecutionLogPath is the append-only milestone log.
func (r *Run) ExecutionLogPath() string {
	return filepath.Join(r.ExecutionDir, "execution_log.txt")
}

// ErrorLogPath is the append-only fault log.
func (r *Run) ErrorLogPath() string {
	return filepath.Join(r.ErrorDir, "error_log.txt")
}

// LogExecution appends one timestamped milestone line and mirrors it to slog.
func (r *Run) LogExecution(message string) {
	line := fmt.Sprintf("%s: %s.\n", Timestamp(r.now()), message)
	if err := r.appendTo(r.ExecutionDir, r.ExecutionLogPath(), line); err != nil {
		r.logger.Error("failed to write execution log", "error", err)
	}
	r.logger.Info(message)
}

// LogError appends the message and the full fault trace of err (if any).
func (r *Run) LogError(message string, err error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Error occurred at %s:\n%s\n", Timestamp(r.now()), message)
	if err != nil {
		fmt.Fprintf(&b, "%+v\n", err)
	}

	if werr := r.appendTo(r.ErrorDir, r.ErrorLogPath(), b.String()); werr != nil {
		r.logger.Error("failed to write error log", "error", werr)
	}

	if err != nil {
		r.logger.Error(message, "error", err)
	} else {
		r.logger.Error(message)
	}
}

// ScreenshotPath returns a fresh path for a screenshot named after label.
func (r *Run) ScreenshotPath(label string, outcome Outcome) (string, error) {
	sub := OutcomeSuccess
	if outcome == OutcomeError {
		sub = OutcomeError
	}
	dir := filepath.Join(r.ScreenshotDir, string(sub))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.png", SanitizeLabel(label), Timestamp(r.now()))
	return filepath.Join(dir, name), nil
}

// SanitizeLabel makes label safe to use as a file name.
func SanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			return '_'
		}
		return r
	}, label)

	const maxRunes = 80
	if runes := []rune(label); len(runes) > maxRunes {
		label = string(runes[:maxRunes])
	}
	if label == "" {
		label = "screenshot"
	}
	return label
}

func (r *Run) appendTo(dir, path, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(text)
	return err
}
