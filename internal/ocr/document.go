package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/finovo/creditocr/internal/common"
)

const stageName = "ocr"

// Config controls document rasterization and recognition.
type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI for PDFs, default 300
	MaxPages int    // 0 = no limit
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// Extractor turns a whole uploaded document into per-page fragment sets.
// PDFs are rasterized page by page; images are a single page as-is.
type Extractor struct {
	pages  PageExtractor
	runner Runner
	cfg    Config
	logger *slog.Logger
}

func NewExtractor(pages PageExtractor, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		pages:  pages,
		runner: execRunner{},
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// WithRunner replaces the command runner, for tests.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// ExtractDocument runs OCR over every page of the document. A page with no
// recognizable text contributes an empty fragment set.
func (e *Extractor) ExtractDocument(ctx context.Context, raw []byte, mimeType string) ([]Page, error) {
	switch mimeType {
	case "image/png", "image/jpeg":
		frags, err := e.pages.ExtractPage(ctx, raw)
		if err != nil {
			return nil, err
		}
		e.logger.Info("ocr.document.ok", "pages", 1, "fragments", len(frags))
		return []Page{{Number: 1, Fragments: frags}}, nil

	case "application/pdf":
		return e.extractPDF(ctx, raw)

	default:
		return nil, common.NewTerminalStageError(stageName,
			"unsupported content type "+mimeType, nil)
	}
}

func (e *Extractor) extractPDF(ctx context.Context, raw []byte) ([]Page, error) {
	tmpDir, err := os.MkdirTemp("", "creditocr-pdf-*")
	if err != nil {
		return nil, common.NewTransientStageError(stageName, "create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, raw, 0o600); err != nil {
		return nil, common.NewTransientStageError(stageName, "write temp pdf", err)
	}

	args := []string{"-r", fmt.Sprint(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprint(e.cfg.MaxPages))
	}
	args = append(args, pdfPath, filepath.Join(tmpDir, "page"))

	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
		// A rasterizer failure means the PDF itself is unreadable.
		return nil, common.NewTerminalStageError(stageName,
			"rasterize pdf: "+truncate(string(errb), 512), err)
	}

	images, err := filepath.Glob(filepath.Join(tmpDir, "page-*.png"))
	if err != nil || len(images) == 0 {
		return nil, common.NewTerminalStageError(stageName, "pdf produced no pages", err)
	}
	sort.Strings(images)

	pages := make([]Page, 0, len(images))
	for i, img := range images {
		data, err := os.ReadFile(img)
		if err != nil {
			return nil, common.NewTransientStageError(stageName, "read page image", err)
		}
		frags, err := e.pages.ExtractPage(ctx, data)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: i + 1, Fragments: frags})
	}

	total := 0
	for _, p := range pages {
		total += len(p.Fragments)
	}
	e.logger.Info("ocr.document.ok", "pages", len(pages), "fragments", total)
	return pages, nil
}
