package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/finovo/creditocr/constants"
)

// ExtractionJob is one row in the append-only extraction ledger. A job is
// opened in pending_extraction when its document first becomes ready, then
// consumed by the claiming run and updated in place as the run advances; it
// is never deleted. At most one non-terminal job exists per document at any
// time.
type ExtractionJob struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID   uuid.UUID           `gorm:"type:uuid;not null;index" json:"document_id"`
	Status       constants.JobStatus `gorm:"size:20;not null;index" json:"status"`
	ErrorMessage *string             `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int                 `gorm:"not null;default:0" json:"retry_count"`
	ModelName    *string             `gorm:"size:100" json:"model_name,omitempty"`
	Confidence   *float32            `json:"confidence,omitempty"`
	Fields       datatypes.JSON      `gorm:"type:json" json:"fields,omitempty"`

	// Blob keys of the artifacts each stage produced. A failed run keeps the
	// keys of the stages that did succeed.
	OCRKey     *string `json:"ocr_key,omitempty"`
	FieldsKey  *string `json:"fields_key,omitempty"`
	OverlayKey *string `json:"overlay_key,omitempty"`

	StartedAt   time.Time  `gorm:"not null;index" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j *ExtractionJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = constants.JobPendingExtraction
	}
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now().UTC()
	}
	return nil
}

func (ExtractionJob) TableName() string {
	return "extraction_jobs"
}

// Active reports whether the job is still running, i.e. not terminal.
func (j *ExtractionJob) Active() bool {
	return !j.Status.Terminal()
}
