package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/llm"
	"github.com/finovo/creditocr/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for
// extraction exports.
type Service struct {
	docs   repository.DocumentRepository
	jobs   repository.ExtractionJobRepository
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, jobs repository.ExtractionJobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, jobs: jobs, logger: logger}
}

// ExportFieldsXLSX returns an XLSX workbook with one row per extracted field
// of the document's most recent completed extraction.
func (s *Service) ExportFieldsXLSX(ctx context.Context, documentID uuid.UUID) ([]byte, error) {
	start := time.Now()

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.LatestCompleted(ctx, documentID)
	if err != nil {
		return nil, err
	}
	var fields llm.DocumentFields
	if len(job.Fields) > 0 {
		if err := json.Unmarshal(job.Fields, &fields); err != nil {
			return nil, common.WrapError(err, "decode extraction fields")
		}
	}

	f := excelize.NewFile()
	const sheet = "Extracted Fields"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		s.logger.Debug("export.sheet_cleanup", "err", err)
	}

	headers := []string{
		"Field",
		"Value",
		"Raw Text",
		"Confidence",
		"Page",
		"Valid",
		"Issues",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	names := make([]string, 0, len(fields.Extracted))
	for name := range fields.Extracted {
		names = append(names, name)
	}
	sort.Strings(names)

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for _, name := range names {
		field := fields.Extracted[name]
		write(1, name)
		write(2, field.Value)
		write(3, field.Raw)
		write(4, fmt.Sprintf("%.2f", field.Confidence))
		if field.Page > 0 {
			write(5, field.Page)
		}
		write(6, field.Valid)
		if len(field.Errors) > 0 {
			write(7, truncate(fmt.Sprintf("%v", field.Errors), 140))
		}
		row++
	}
	for _, name := range fields.Missing {
		write(1, name)
		write(2, "")
		write(6, false)
		write(7, "not found in document")
		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 24) // field
	_ = f.SetColWidth(sheet, "B", "C", 32) // value, raw
	_ = f.SetColWidth(sheet, "D", "F", 12)
	_ = f.SetColWidth(sheet, "G", "G", 48) // issues

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"document_id", documentID.String(),
		"file_name", doc.FileName,
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
