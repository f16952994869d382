package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

// ExcelSink writes the product table as a single-sheet workbook.
type ExcelSink struct {
	path   string
	logger *slog.Logger
}

func NewExcelSink(path string, logger *slog.Logger) *ExcelSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelSink{
		path:   path,
		logger: logger.With("component", "excel_sink"),
	}
}

func (s *ExcelSink) Name() string { return "excel" }

func (s *ExcelSink) Path() string { return s.path }

// Write builds the workbook in a temp file next to the target and moves it
// into place, replacing any earlier artifact.
func (s *ExcelSink) Write(ctx context.Context, records []*models.ProductRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(models.Columns))
	for i, c := range models.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, rec := range records {
		row := rec.Row()
		for j, v := range row {
			if str, ok := v.(string); ok {
				row[j] = s.fitCell(str, rec.URL, models.Columns[j])
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove previous output: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}

	s.logger.Info("workbook written", "path", s.path, "rows", len(records))
	return nil
}

// fitCell truncates text beyond the per-cell character limit of the format.
func (s *ExcelSink) fitCell(text, url, column string) string {
	if utf8.RuneCountInString(text) <= excelize.TotalCellChars {
		return text
	}
	s.logger.Warn("cell truncated", "url", url, "column", column, "chars", utf8.RuneCountInString(text))
	return string([]rune(text)[:excelize.TotalCellChars])
}
