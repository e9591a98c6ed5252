// Package dms is the document management service: it owns uploads,
// deduplication, extraction triggers and status reads. A document becomes
// runnable only after its raw blob is stored and verified readable.
package dms

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/finovo/creditocr/constants"
	"github.com/finovo/creditocr/internal/async"
	"github.com/finovo/creditocr/internal/blobstore"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/entity"
	"github.com/finovo/creditocr/internal/llm"
	"github.com/finovo/creditocr/internal/profiles"
	"github.com/finovo/creditocr/internal/repository"
)

// Queue decouples the trigger endpoint from pipeline execution.
type Queue interface {
	Enqueue(ctx context.Context, job async.Job) error
}

type Service struct {
	docs   repository.DocumentRepository
	jobs   repository.ExtractionJobRepository
	blobs  blobstore.Store
	queue  Queue
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, jobs repository.ExtractionJobRepository, blobs blobstore.Store, queue Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, jobs: jobs, blobs: blobs, queue: queue, logger: logger}
}

// UploadRequest carries one uploaded document.
type UploadRequest struct {
	FileName     string
	ContentType  string
	DocumentType string
	Data         []byte
}

// UploadResult reports what became of an upload.
type UploadResult struct {
	Document     *entity.Document
	Deduplicated bool
}

// Upload validates, stores and registers a document. The same bytes uploaded
// twice return the existing document instead of a second copy. A document
// with a disallowed content type is kept at not_ready; otherwise the raw
// blob is verified retrievable, the document is marked ready and its initial
// pending job is opened.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	name := strings.TrimSpace(req.FileName)
	if err := common.NewValidator().
		Field("file_name", name, common.Required, common.MaxLength(255)).
		Field("file", req.Data, common.Required).
		Error(); err != nil {
		return nil, err
	}

	mime := strings.TrimSpace(req.ContentType)
	if mime == "" || mime == "application/octet-stream" {
		// Multipart uploads often arrive without a usable part content type.
		mime = constants.MIMEFromExt(filepath.Ext(name))
	}

	if req.DocumentType != "" {
		if _, err := profiles.ByDocumentType(req.DocumentType); err != nil {
			return nil, err
		}
	}

	sum := sha256.Sum256(req.Data)
	digest := hex.EncodeToString(sum[:])

	if existing, err := s.docs.GetBySHA256(ctx, digest); err == nil {
		s.logger.Info("upload.deduplicated", "document_id", existing.ID, "file_name", name)
		return &UploadResult{Document: existing, Deduplicated: true}, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	doc := &entity.Document{
		ID:           uuid.New(),
		FileName:     name,
		MIMEType:     mime,
		SizeBytes:    int64(len(req.Data)),
		SHA256:       digest,
		DocumentType: req.DocumentType,
	}
	doc.StorageKey = blobstore.Key(doc.ID, constants.StageRaw, "."+constants.ExtFromMIME(mime))

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.blobs.Put(ctx, doc.StorageKey, bytes.NewReader(req.Data), doc.SizeBytes, mime); err != nil {
		s.logger.Error("upload.store_failed", "document_id", doc.ID, "err", err)
		return nil, common.WrapError(err, "store upload")
	}

	// A disallowed content type is stored but never becomes runnable: the
	// document stays not_ready and no ledger entry is opened.
	if !constants.MIMEAllowed(mime) {
		s.logger.Warn("upload.not_ready",
			"document_id", doc.ID, "file_name", name, "content_type", mime)
		return &UploadResult{Document: doc}, nil
	}
	// Verify the blob is actually retrievable before declaring the document
	// runnable. A document whose upload is not verified stays not_ready.
	if _, err := s.blobs.Stat(ctx, doc.StorageKey); err != nil {
		s.logger.Error("upload.verify_failed", "document_id", doc.ID, "err", err)
		return nil, common.WrapError(err, "verify upload")
	}

	pages := countPages(req.Data, mime)
	if err := s.docs.MarkReady(ctx, doc.ID, pages); err != nil {
		return nil, err
	}
	doc.TextExtractionStatus = constants.TextReady
	doc.PageCount = pages

	// The ready document gets its initial ledger entry; the first claim
	// consumes it.
	if _, err := s.jobs.EnsurePending(ctx, doc.ID); err != nil {
		return nil, err
	}

	s.logger.Info("upload.ok",
		"document_id", doc.ID, "file_name", name, "size_bytes", doc.SizeBytes, "pages", pages)
	return &UploadResult{Document: doc}, nil
}

// Trigger queues an extraction run for the document. A document that is not
// in the ready state is rejected here without opening a ledger entry; the
// claim inside the pipeline remains the authoritative gate against races.
func (s *Service) Trigger(ctx context.Context, documentID uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.TextExtractionStatus != constants.TextReady {
		s.logger.Warn("trigger.rejected",
			"document_id", documentID, "text_extraction_status", doc.TextExtractionStatus)
		return common.ErrDocumentNotReady
	}
	return s.queue.Enqueue(ctx, async.Job{DocumentID: documentID})
}

// DocumentStatus is the status view of one document: both axes plus the
// latest ledger entries.
type DocumentStatus struct {
	Document      *entity.Document
	LatestJob     *entity.ExtractionJob
	LastCompleted *entity.ExtractionJob
}

func (s *Service) Status(ctx context.Context, documentID uuid.UUID) (*DocumentStatus, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := &DocumentStatus{Document: doc}

	if job, err := s.jobs.LatestByDocument(ctx, documentID); err == nil {
		out.LatestJob = job
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if job, err := s.jobs.LatestCompleted(ctx, documentID); err == nil {
		out.LastCompleted = job
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	return out, nil
}

// ExtractionView is the most recent successful extraction of a document.
type ExtractionView struct {
	JobID      uuid.UUID
	ModelName  string
	Confidence float32
	Fields     llm.DocumentFields
	OCRKey     string
	FieldsKey  string
	OverlayKey string
}

// Results returns the last completed extraction. A document that never
// completed a run yields ErrNotFound.
func (s *Service) Results(ctx context.Context, documentID uuid.UUID) (*ExtractionView, error) {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	job, err := s.jobs.LatestCompleted(ctx, documentID)
	if err != nil {
		return nil, err
	}

	view := &ExtractionView{JobID: job.ID}
	if job.ModelName != nil {
		view.ModelName = *job.ModelName
	}
	if job.Confidence != nil {
		view.Confidence = *job.Confidence
	}
	if len(job.Fields) > 0 {
		if err := json.Unmarshal(job.Fields, &view.Fields); err != nil {
			return nil, common.WrapError(err, "decode extraction fields")
		}
	}
	if job.OCRKey != nil {
		view.OCRKey = *job.OCRKey
	}
	if job.FieldsKey != nil {
		view.FieldsKey = *job.FieldsKey
	}
	if job.OverlayKey != nil {
		view.OverlayKey = *job.OverlayKey
	}
	return view, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]entity.Document, error) {
	return s.docs.List(ctx, limit, offset)
}

func (s *Service) Jobs(ctx context.Context, documentID uuid.UUID) ([]entity.ExtractionJob, error) {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.jobs.ListByDocument(ctx, documentID)
}

// countPages estimates the page count without rasterizing. PDF page objects
// carry a "/Type /Page" marker; images are always one page.
func countPages(data []byte, mime string) int {
	if mime != "application/pdf" {
		return 1
	}
	n := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	n += bytes.Count(data, []byte("/Type/Page")) - bytes.Count(data, []byte("/Type/Pages"))
	if n < 1 {
		return 1
	}
	return n
}
