package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finovo/creditocr/constants"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/entity"
	"github.com/finovo/creditocr/internal/status"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	GetBySHA256(ctx context.Context, digest string) (*entity.Document, error)
	List(ctx context.Context, limit, offset int) ([]entity.Document, error)

	// MarkReady flips a verified upload from not_ready to ready.
	MarkReady(ctx context.Context, id uuid.UUID, pageCount int) error

	// AdvanceProcessing moves the processing axis one legal step. The update
	// is guarded on the expected current value, so a concurrent writer makes
	// it a no-op error instead of a lost update.
	AdvanceProcessing(ctx context.Context, id uuid.UUID, from, to constants.ProcessingStatus) error

	// FinishText lands the text-extraction axis in a terminal state.
	FinishText(ctx context.Context, id uuid.UUID, from, to constants.TextExtractionStatus) error

	// Revert returns a claimed document to the runnable state after a
	// transient failure that still has retry budget.
	Revert(ctx context.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewDocumentRepository(db *gorm.DB, log *slog.Logger) DocumentRepository {
	return &documentRepo{db: db, log: log}
}

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		r.log.Error("document.create.failed", "file_name", doc.FileName, "err", err)
		return common.WrapError(err, "create document")
	}
	r.log.Info("document.created", "document_id", doc.ID, "file_name", doc.FileName)
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	var doc entity.Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get document")
	}
	return &doc, nil
}

func (r *documentRepo) GetBySHA256(ctx context.Context, digest string) (*entity.Document, error) {
	var doc entity.Document
	err := r.db.WithContext(ctx).First(&doc, "sha256 = ?", digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get document by digest")
	}
	return &doc, nil
}

func (r *documentRepo) List(ctx context.Context, limit, offset int) ([]entity.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	var docs []entity.Document
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&docs).Error
	if err != nil {
		return nil, common.WrapError(err, "list documents")
	}
	return docs, nil
}

func (r *documentRepo) MarkReady(ctx context.Context, id uuid.UUID, pageCount int) error {
	res := r.db.WithContext(ctx).
		Model(&entity.Document{}).
		Where("id = ? AND text_extraction_status = ?", id, constants.TextNotReady).
		Updates(map[string]any{
			"text_extraction_status": constants.TextReady,
			"page_count":             pageCount,
		})
	if res.Error != nil {
		return common.WrapError(res.Error, "mark document ready")
	}
	if res.RowsAffected == 0 {
		return common.NewInvariantViolation("text_transition",
			"document is not in not_ready state")
	}
	r.log.Info("document.ready", "document_id", id, "page_count", pageCount)
	return nil
}

func (r *documentRepo) AdvanceProcessing(ctx context.Context, id uuid.UUID, from, to constants.ProcessingStatus) error {
	if err := status.CheckProcessingTransition(from, to); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&entity.Document{}).
		Where("id = ? AND processing_status = ?", id, from).
		Update("processing_status", to)
	if res.Error != nil {
		return common.WrapError(res.Error, "advance processing status")
	}
	if res.RowsAffected == 0 {
		return common.NewInvariantViolation("processing_transition",
			"document processing status changed concurrently")
	}
	r.log.Info("document.processing", "document_id", id, "from", from, "to", to)
	return nil
}

func (r *documentRepo) FinishText(ctx context.Context, id uuid.UUID, from, to constants.TextExtractionStatus) error {
	if err := status.CheckTextTransition(from, to); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&entity.Document{}).
		Where("id = ? AND text_extraction_status = ?", id, from).
		Update("text_extraction_status", to)
	if res.Error != nil {
		return common.WrapError(res.Error, "finish text extraction")
	}
	if res.RowsAffected == 0 {
		return common.NewInvariantViolation("text_transition",
			"document text status changed concurrently")
	}
	r.log.Info("document.text", "document_id", id, "from", from, "to", to)
	return nil
}

func (r *documentRepo) Revert(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entity.Document{}).
			Where("id = ? AND text_extraction_status = ?", id, constants.TextInProgress).
			Update("text_extraction_status", constants.TextReady)
		if res.Error != nil {
			return common.WrapError(res.Error, "revert text status")
		}
		if res.RowsAffected == 0 {
			return common.NewInvariantViolation("text_transition",
				"document is not in in_progress state")
		}
		res = tx.Model(&entity.Document{}).
			Where("id = ?", id).
			Update("processing_status", constants.ProcPendingExtraction)
		if res.Error != nil {
			return common.WrapError(res.Error, "revert processing status")
		}
		r.log.Info("document.reverted", "document_id", id)
		return nil
	})
}
