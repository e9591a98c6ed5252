package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/finovo/creditocr/constants"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/entity"
	"github.com/finovo/creditocr/internal/status"
)

// ExtractionResult carries everything a successful run persists on its job.
type ExtractionResult struct {
	Fields     datatypes.JSON
	Confidence float32
	ModelName  string
}

type ExtractionJobRepository interface {
	// EnsurePending returns the document's open ledger entry, creating one in
	// pending_extraction when none exists. Called when a document becomes
	// ready; at most one non-terminal job exists per document.
	EnsurePending(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error)

	// Claim atomically flips a ready document to in_progress and consumes its
	// pending job, creating one if the ready-time job is missing. The loser of
	// a concurrent claim gets ErrActiveJobExists; a document in any other
	// text-extraction state is rejected with ErrDocumentNotReady.
	Claim(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error)

	GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error)
	LatestByDocument(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error)
	LatestCompleted(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]entity.ExtractionJob, error)

	// SetArtifact records the blob key a stage produced. Artifact keys
	// survive a later failure of the run.
	SetArtifact(ctx context.Context, jobID uuid.UUID, stage constants.Stage, key string) error

	// FinishSuccess lands the job in done with its extraction result.
	FinishSuccess(ctx context.Context, jobID uuid.UUID, result ExtractionResult) error

	// FinishFailure lands the job in failed. The message must be non-empty.
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error

	// BumpRetry increments the retry counter of a still-running job.
	BumpRetry(ctx context.Context, jobID uuid.UUID) (int, error)

	// ListStale returns non-terminal jobs of claimed documents started
	// before the cutoff. A pending job whose document was never claimed is
	// awaiting a trigger, not stale.
	ListStale(ctx context.Context, cutoff time.Time) ([]entity.ExtractionJob, error)
}

type extractionJobRepo struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewExtractionJobRepository(db *gorm.DB, log *slog.Logger) ExtractionJobRepository {
	return &extractionJobRepo{db: db, log: log}
}

func (r *extractionJobRepo) EnsurePending(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error) {
	var (
		job     *entity.ExtractionJob
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		job, created, err = ensurePending(tx, documentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created {
		r.log.Info("job.opened", "job_id", job.ID, "document_id", documentID)
	}
	return job, nil
}

// ensurePending finds the document's non-terminal ledger entry or creates a
// fresh pending one. Runs inside the caller's transaction.
func ensurePending(tx *gorm.DB, documentID uuid.UUID) (*entity.ExtractionJob, bool, error) {
	var existing entity.ExtractionJob
	err := tx.Where("document_id = ? AND status NOT IN ?", documentID,
		[]constants.JobStatus{constants.JobDone, constants.JobFailed}).
		Order("started_at DESC").
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, common.WrapError(err, "find open job")
	}

	job := &entity.ExtractionJob{
		DocumentID: documentID,
		Status:     constants.JobPendingExtraction,
		StartedAt:  time.Now().UTC(),
	}
	if err := tx.Create(job).Error; err != nil {
		return nil, false, common.WrapError(err, "create extraction job")
	}
	return job, true, nil
}

func (r *extractionJobRepo) Claim(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error) {
	var job *entity.ExtractionJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guarded update: only a ready document can be claimed. Anything
		// else, including a concurrent claim that won the race, leaves zero
		// rows affected.
		res := tx.Model(&entity.Document{}).
			Where("id = ? AND text_extraction_status = ?", documentID, constants.TextReady).
			Update("text_extraction_status", constants.TextInProgress)
		if res.Error != nil {
			return common.WrapError(res.Error, "claim document")
		}
		if res.RowsAffected == 0 {
			var doc entity.Document
			if err := tx.First(&doc, "id = ?", documentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return common.ErrNotFound
				}
				return common.WrapError(err, "load document")
			}
			if doc.TextExtractionStatus == constants.TextInProgress {
				// The loser of a concurrent claim sees the winner's state.
				return common.ErrActiveJobExists
			}
			return common.ErrDocumentNotReady
		}

		var (
			created bool
			err     error
		)
		job, created, err = ensurePending(tx, documentID)
		if err != nil {
			return err
		}
		if !created {
			// The job was opened when the document became ready; the run
			// clock starts now.
			job.StartedAt = time.Now().UTC()
			if err := tx.Model(job).Update("started_at", job.StartedAt).Error; err != nil {
				return common.WrapError(err, "restart job clock")
			}
		}
		return nil
	})
	if err != nil {
		r.log.Warn("job.claim.rejected", "document_id", documentID, "err", err)
		return nil, err
	}
	r.log.Info("job.claimed", "job_id", job.ID, "document_id", documentID)
	return job, nil
}

func (r *extractionJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	var job entity.ExtractionJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get extraction job")
	}
	return &job, nil
}

func (r *extractionJobRepo) LatestByDocument(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error) {
	var job entity.ExtractionJob
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("started_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get latest job")
	}
	return &job, nil
}

func (r *extractionJobRepo) LatestCompleted(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionJob, error) {
	var job entity.ExtractionJob
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND status = ?", documentID, constants.JobDone).
		Order("started_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get latest completed job")
	}
	return &job, nil
}

func (r *extractionJobRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]entity.ExtractionJob, error) {
	var jobs []entity.ExtractionJob
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("started_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, common.WrapError(err, "list extraction jobs")
	}
	return jobs, nil
}

func (r *extractionJobRepo) SetArtifact(ctx context.Context, jobID uuid.UUID, stage constants.Stage, key string) error {
	var column string
	switch stage {
	case constants.StageOCR:
		column = "ocr_key"
	case constants.StageLLM:
		column = "fields_key"
	case constants.StageAnnotated:
		column = "overlay_key"
	default:
		return common.NewAppError("ARTIFACT_ERROR", "unknown artifact stage "+string(stage), common.ErrInvalidInput)
	}
	err := r.db.WithContext(ctx).
		Model(&entity.ExtractionJob{}).
		Where("id = ?", jobID).
		Update(column, key).Error
	if err != nil {
		return common.WrapError(err, "record artifact key")
	}
	r.log.Info("job.artifact", "job_id", jobID, "stage", stage, "key", key)
	return nil
}

func (r *extractionJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, result ExtractionResult) error {
	return r.finish(ctx, jobID, constants.JobDone, func(job *entity.ExtractionJob, now time.Time) map[string]any {
		return map[string]any{
			"status":       constants.JobDone,
			"fields":       result.Fields,
			"confidence":   result.Confidence,
			"model_name":   result.ModelName,
			"completed_at": now,
		}
	})
}

func (r *extractionJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	if err := status.CheckFailure(&message); err != nil {
		return err
	}
	return r.finish(ctx, jobID, constants.JobFailed, func(job *entity.ExtractionJob, now time.Time) map[string]any {
		return map[string]any{
			"status":        constants.JobFailed,
			"error_message": message,
			"completed_at":  now,
		}
	})
}

func (r *extractionJobRepo) finish(ctx context.Context, jobID uuid.UUID, to constants.JobStatus, updates func(*entity.ExtractionJob, time.Time) map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job entity.ExtractionJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound
			}
			return common.WrapError(err, "load job")
		}
		if err := status.CheckJobTransition(job.Status, to); err != nil {
			return err
		}
		if err := status.CheckJobCompletion(job.Status, job.CompletedAt); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Model(&job).Updates(updates(&job, now)).Error; err != nil {
			return common.WrapError(err, "finish job")
		}
		r.log.Info("job.finished", "job_id", jobID, "status", to)
		return nil
	})
}

func (r *extractionJobRepo) BumpRetry(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job entity.ExtractionJob
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound
			}
			return common.WrapError(err, "load job")
		}
		if job.Status.Terminal() {
			return common.NewInvariantViolation("job_transition",
				"cannot retry a terminal job")
		}
		count = job.RetryCount + 1
		return tx.Model(&job).Update("retry_count", count).Error
	})
	if err != nil {
		return 0, err
	}
	r.log.Info("job.retry", "job_id", jobID, "retry_count", count)
	return count, nil
}

func (r *extractionJobRepo) ListStale(ctx context.Context, cutoff time.Time) ([]entity.ExtractionJob, error) {
	var jobs []entity.ExtractionJob
	err := r.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = extraction_jobs.document_id").
		Where("extraction_jobs.status NOT IN ? AND extraction_jobs.started_at < ?",
			[]constants.JobStatus{constants.JobDone, constants.JobFailed}, cutoff).
		Where("documents.text_extraction_status = ?", constants.TextInProgress).
		Order("extraction_jobs.started_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, common.WrapError(err, "list stale jobs")
	}
	return jobs, nil
}
