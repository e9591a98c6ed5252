// Package pipeline coordinates one extraction run: claim the document, OCR
// it, reconstruct the layout, map fields with the model, and land every
// status in the right place no matter where the run dies.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/finovo/creditocr/constants"
	"github.com/finovo/creditocr/internal/blobstore"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/entity"
	"github.com/finovo/creditocr/internal/layout"
	"github.com/finovo/creditocr/internal/llm"
	"github.com/finovo/creditocr/internal/ocr"
	"github.com/finovo/creditocr/internal/profiles"
	"github.com/finovo/creditocr/internal/repository"
)

// DocumentExtractor is the OCR dependency of the orchestrator.
type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, raw []byte, mimeType string) ([]ocr.Page, error)
}

// Annotator renders a visual overlay of the reconstructed pairs.
type Annotator interface {
	Render(ex *layout.Extraction) ([]byte, error)
}

// Config holds the orchestrator's knobs. A non-zero Layout overrides the
// profile's reconstruction thresholds.
type Config struct {
	RetryBudget  int
	ModelName    string
	DrawOverlays bool
	Layout       layout.Config
}

// LayoutFromConfig maps the config file's layout section onto the
// reconstruction thresholds.
func LayoutFromConfig(c common.LayoutConfig) layout.Config {
	return layout.Config{
		RowTolerance:     c.RowTolerance,
		GapThreshold:     c.GapThreshold,
		MinMergeLength:   c.MinMergeLength,
		OverlapLimit:     c.OverlapLimit,
		Separator:        c.Separator,
		ShortLabelLength: c.ShortLabelLength,
		SkipPenalty:      c.SkipPenalty,
	}
}

// Orchestrator runs the OCR-then-LLM pipeline for one document at a time.
type Orchestrator struct {
	docs      repository.DocumentRepository
	jobs      repository.ExtractionJobRepository
	blobs     blobstore.Store
	extractor DocumentExtractor
	fields    llm.FieldExtractor
	annotator Annotator
	cfg       Config
	logger    *slog.Logger
}

func NewOrchestrator(
	docs repository.DocumentRepository,
	jobs repository.ExtractionJobRepository,
	blobs blobstore.Store,
	extractor DocumentExtractor,
	fields llm.FieldExtractor,
	annotator Annotator,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = 0
	}
	return &Orchestrator{
		docs:      docs,
		jobs:      jobs,
		blobs:     blobs,
		extractor: extractor,
		fields:    fields,
		annotator: annotator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process claims the document and drives one full extraction run. The claim
// is atomic: a document that is not ready, or that already has an active
// job, is rejected without side effects. Transient stage failures are
// retried within the run's budget; everything else fails the run with the
// failure recorded on the job.
func (o *Orchestrator) Process(ctx context.Context, documentID uuid.UUID) (uuid.UUID, error) {
	ctx = common.WithDocumentID(ctx, documentID.String())

	doc, err := o.docs.GetByID(ctx, documentID)
	if err != nil {
		return uuid.Nil, err
	}
	profile, err := profiles.ByDocumentType(doc.DocumentType)
	if err != nil {
		return uuid.Nil, err
	}

	job, err := o.jobs.Claim(ctx, doc.ID)
	if err != nil {
		return uuid.Nil, err
	}
	o.logger.Info("pipeline.start",
		"document_id", doc.ID, "job_id", job.ID, "document_type", doc.DocumentType)

	cur := constants.ProcPendingExtraction
	retries := 0
	for {
		runErr := o.runStages(ctx, doc, job, profile, &cur)
		if runErr == nil {
			o.logger.Info("pipeline.ok", "document_id", doc.ID, "job_id", job.ID)
			return job.ID, nil
		}

		if ctx.Err() != nil {
			// Cancellation or deadline: land the run in failed with a
			// message that says the system, not the document, gave up.
			return job.ID, o.failRun(doc, job, &cur,
				"processing aborted: "+ctx.Err().Error())
		}

		if common.IsTransient(runErr) && retries < o.cfg.RetryBudget {
			retries++
			o.logger.Warn("pipeline.retry",
				"document_id", doc.ID, "job_id", job.ID,
				"attempt", retries, "budget", o.cfg.RetryBudget, "err", runErr)
			if _, err := o.jobs.BumpRetry(ctx, job.ID); err != nil {
				return job.ID, o.failRun(doc, job, &cur, "retry bookkeeping failed: "+err.Error())
			}
			if err := o.rewind(ctx, doc.ID, &cur); err != nil {
				return job.ID, o.failRun(doc, job, &cur, "retry rewind failed: "+err.Error())
			}
			continue
		}

		return job.ID, o.failRun(doc, job, &cur, runErr.Error())
	}
}

// runStages executes OCR, layout reconstruction and field extraction,
// advancing the processing axis as it goes. cur tracks the axis so the
// caller can land it correctly on failure.
func (o *Orchestrator) runStages(ctx context.Context, doc *entity.Document, job *entity.ExtractionJob, profile profiles.Profile, cur *constants.ProcessingStatus) error {
	if err := o.advance(ctx, doc.ID, cur, constants.ProcOCRRunning); err != nil {
		return err
	}

	raw, err := o.readBlob(ctx, doc.StorageKey)
	if err != nil {
		return common.NewTransientStageError("ocr", "read source document", err)
	}

	pages, err := o.extractor.ExtractDocument(ctx, raw, doc.MIMEType)
	if err != nil {
		return err
	}

	layoutCfg := profile.Layout
	if o.cfg.Layout != (layout.Config{}) {
		layoutCfg = o.cfg.Layout
	}
	ex := layout.Normalize(pages, layoutCfg)
	exJSON, err := json.Marshal(ex)
	if err != nil {
		return common.NewTerminalStageError("ocr", "encode extraction", err)
	}
	ocrKey := blobstore.Key(doc.ID, constants.StageOCR, ".json")
	if err := o.blobs.Put(ctx, ocrKey, bytes.NewReader(exJSON), int64(len(exJSON)), "application/json"); err != nil {
		return common.NewTransientStageError("ocr", "store extraction artifact", err)
	}
	if err := o.jobs.SetArtifact(ctx, job.ID, constants.StageOCR, ocrKey); err != nil {
		return err
	}
	o.logger.Info("pipeline.ocr.ok",
		"document_id", doc.ID, "job_id", job.ID,
		"pages", len(pages),
		"fragments", ex.Summary.FragmentCount,
		"pairs", ex.Summary.PairCount,
	)

	if err := o.advance(ctx, doc.ID, cur, constants.ProcLLMRunning); err != nil {
		return err
	}

	fields, rawFields, err := o.fields.ExtractFields(ctx, llm.ExtractRequest{
		Extraction: ex,
		Profile:    profile,
		FileName:   doc.FileName,
	})
	if err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return common.NewTerminalStageError("llm", "encode fields", err)
	}
	fieldsKey := blobstore.Key(doc.ID, constants.StageLLM, ".json")
	if err := o.blobs.Put(ctx, fieldsKey, bytes.NewReader(fieldsJSON), int64(len(fieldsJSON)), "application/json"); err != nil {
		return common.NewTransientStageError("llm", "store fields artifact", err)
	}
	if err := o.jobs.SetArtifact(ctx, job.ID, constants.StageLLM, fieldsKey); err != nil {
		return err
	}
	o.logger.Info("pipeline.llm.ok",
		"document_id", doc.ID, "job_id", job.ID,
		"extracted", len(fields.Extracted), "missing", len(fields.Missing),
		"raw_bytes", len(rawFields),
	)

	// The overlay is a debugging aid; its failure never fails the run.
	if o.cfg.DrawOverlays && o.annotator != nil {
		o.renderOverlay(ctx, doc, job, ex)
	}

	if err := o.jobs.FinishSuccess(ctx, job.ID, repository.ExtractionResult{
		Fields:     datatypes.JSON(fieldsJSON),
		Confidence: float32(fields.Confidence()),
		ModelName:  o.cfg.ModelName,
	}); err != nil {
		return err
	}
	if err := o.docs.FinishText(ctx, doc.ID, constants.TextInProgress, constants.TextCompleted); err != nil {
		return err
	}
	return o.advance(ctx, doc.ID, cur, constants.ProcDone)
}

func (o *Orchestrator) renderOverlay(ctx context.Context, doc *entity.Document, job *entity.ExtractionJob, ex *layout.Extraction) {
	png, err := o.annotator.Render(ex)
	if err != nil {
		o.logger.Warn("pipeline.overlay.failed", "document_id", doc.ID, "err", err)
		return
	}
	key := blobstore.Key(doc.ID, constants.StageAnnotated, ".png")
	if err := o.blobs.Put(ctx, key, bytes.NewReader(png), int64(len(png)), "image/png"); err != nil {
		o.logger.Warn("pipeline.overlay.store_failed", "document_id", doc.ID, "err", err)
		return
	}
	if err := o.jobs.SetArtifact(ctx, job.ID, constants.StageAnnotated, key); err != nil {
		o.logger.Warn("pipeline.overlay.record_failed", "document_id", doc.ID, "err", err)
	}
}

func (o *Orchestrator) advance(ctx context.Context, docID uuid.UUID, cur *constants.ProcessingStatus, to constants.ProcessingStatus) error {
	if err := o.docs.AdvanceProcessing(ctx, docID, *cur, to); err != nil {
		return err
	}
	*cur = to
	return nil
}

// rewind returns the processing axis to pending_extraction between retry
// attempts. The text axis stays in in_progress: the run still owns the
// document.
func (o *Orchestrator) rewind(ctx context.Context, docID uuid.UUID, cur *constants.ProcessingStatus) error {
	if *cur == constants.ProcPendingExtraction {
		return nil
	}
	return o.advance(ctx, docID, cur, constants.ProcPendingExtraction)
}

// failRun lands job and document in failed. Bookkeeping runs on a fresh
// context so a canceled run still records its failure. Artifacts written by
// completed stages are left in place.
func (o *Orchestrator) failRun(doc *entity.Document, job *entity.ExtractionJob, cur *constants.ProcessingStatus, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.logger.Error("pipeline.failed",
		"document_id", doc.ID, "job_id", job.ID, "error", message)

	if err := o.jobs.FinishFailure(ctx, job.ID, message); err != nil {
		o.logger.Error("pipeline.fail_bookkeeping", "job_id", job.ID, "err", err)
	}
	if err := o.docs.FinishText(ctx, doc.ID, constants.TextInProgress, constants.TextFailed); err != nil {
		o.logger.Error("pipeline.fail_bookkeeping", "document_id", doc.ID, "err", err)
	}
	if *cur != constants.ProcFailed {
		if err := o.advance(ctx, doc.ID, cur, constants.ProcFailed); err != nil {
			o.logger.Error("pipeline.fail_bookkeeping", "document_id", doc.ID, "err", err)
		}
	}
	return common.NewAppError("PIPELINE_FAILED", message, nil)
}

func (o *Orchestrator) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := o.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
