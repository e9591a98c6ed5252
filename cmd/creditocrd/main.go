package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/finovo/creditocr/internal/annotate"
	"github.com/finovo/creditocr/internal/async"
	"github.com/finovo/creditocr/internal/blobstore"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/dms"
	"github.com/finovo/creditocr/internal/export"
	"github.com/finovo/creditocr/internal/llm/openai"
	"github.com/finovo/creditocr/internal/ocr"
	"github.com/finovo/creditocr/internal/pipeline"
	"github.com/finovo/creditocr/internal/repository"
	"github.com/finovo/creditocr/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "err", err)
		os.Exit(1)
	}

	var blobs blobstore.Store
	if cfg.Blob.Type == "minio" {
		blobs, err = blobstore.NewMinio(cfg.Blob)
	} else {
		blobs, err = blobstore.NewLocal(cfg.Blob.Path)
	}
	if err != nil {
		logger.Error("blob store init failed", "type", cfg.Blob.Type, "err", err)
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

	docs := repository.NewDocumentRepository(db, logger)
	jobs := repository.NewExtractionJobRepository(db, logger)

	orch := pipeline.NewOrchestrator(docs, jobs, blobs, extractor, fields, annotate.NewOverlay(),
		pipeline.Config{
			RetryBudget:  cfg.Pipeline.RetryBudget,
			ModelName:    cfg.LLM.Model,
			DrawOverlays: cfg.Pipeline.DrawOverlays,
			Layout:       pipeline.LayoutFromConfig(cfg.Layout),
		}, logger)

	queue := async.NewPipelineQueue(orch, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.RunTimeout),
	)

	reaper := pipeline.NewReaper(docs, jobs, cfg.Pipeline.StaleAfter, logger)
	go reaper.Run(ctx)

	dmsSvc := dms.NewService(docs, jobs, blobs, queue, logger)
	exportSvc := export.NewService(docs, jobs, logger)
	srv := server.New(dmsSvc, exportSvc, logger)

	if err := srv.Run(ctx, cfg.Server); err != nil {
		logger.Error("server error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)
}
