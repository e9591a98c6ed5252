// runpipeline uploads a document (or takes an existing document ID) and runs
// one extraction synchronously, printing the extracted fields as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/finovo/creditocr/internal/annotate"
	"github.com/finovo/creditocr/internal/blobstore"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/dms"
	"github.com/finovo/creditocr/internal/llm/openai"
	"github.com/finovo/creditocr/internal/ocr"
	"github.com/finovo/creditocr/internal/pipeline"
	"github.com/finovo/creditocr/internal/repository"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	filePath := flag.String("file", "", "document to upload and process")
	docID := flag.String("id", "", "existing document ID to process")
	docType := flag.String("type", "", "document type (default loan_application)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if (*filePath == "") == (*docID == "") {
		logger.Error("usage", "cmd", "runpipeline -file <path> | -id <document-uuid>")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.RunTimeout)
	defer cancel()

	db, err := repository.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "err", err)
		os.Exit(1)
	}

	var blobs blobstore.Store
	if cfg.Blob.Type == "minio" {
		blobs, err = blobstore.NewMinio(cfg.Blob)
	} else {
		blobs, err = blobstore.NewLocal(cfg.Blob.Path)
	}
	if err != nil {
		logger.Error("blob store init failed", "err", err)
		os.Exit(1)
	}

	docs := repository.NewDocumentRepository(db, logger)
	jobs := repository.NewExtractionJobRepository(db, logger)

	documentID, err := resolveDocument(ctx, docs, jobs, blobs, *filePath, *docID, *docType, logger)
	if err != nil {
		logger.Error("resolve document", "err", err)
		os.Exit(1)
	}

	tess, err := ocr.NewTesseractExtractor(ocr.WithLanguage(cfg.OCR.Language))
	if err != nil {
		logger.Error("tesseract init failed", "err", err)
		os.Exit(1)
	}
	extractor := ocr.NewExtractor(tess, ocr.Config{}, logger)
	fields := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	orch := pipeline.NewOrchestrator(docs, jobs, blobs, extractor, fields, annotate.NewOverlay(),
		pipeline.Config{
			RetryBudget:  cfg.Pipeline.RetryBudget,
			ModelName:    cfg.LLM.Model,
			DrawOverlays: cfg.Pipeline.DrawOverlays,
			Layout:       pipeline.LayoutFromConfig(cfg.Layout),
		}, logger)

	start := time.Now()
	jobID, err := orch.Process(ctx, documentID)
	dur := time.Since(start)
	if err != nil {
		logger.Error("extraction failed", "job_id", jobID, "err", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}
	logger.Info("extraction ok", "job_id", jobID, "duration_ms", dur.Milliseconds())

	view, err := dms.NewService(docs, jobs, blobs, nil, logger).Results(ctx, documentID)
	if err != nil {
		logger.Error("read results", "err", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(view.Fields, "", "  ")
	if err != nil {
		logger.Error("encode results", "err", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func resolveDocument(ctx context.Context, docs repository.DocumentRepository, jobs repository.ExtractionJobRepository, blobs blobstore.Store, filePath, docID, docType string, logger *slog.Logger) (uuid.UUID, error) {
	if docID != "" {
		return uuid.Parse(docID)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return uuid.Nil, err
	}
	svc := dms.NewService(docs, jobs, blobs, nil, logger)
	res, err := svc.Upload(ctx, dms.UploadRequest{
		FileName:     filepath.Base(filePath),
		DocumentType: docType,
		Data:         data,
	})
	if err != nil {
		return uuid.Nil, err
	}
	if res.Deduplicated {
		logger.Info("document already uploaded", "document_id", res.Document.ID)
	}
	return res.Document.ID, nil
}
