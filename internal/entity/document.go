package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finovo/creditocr/constants"
)

// Document represents an uploaded financial document. The two status columns
// are independent axes: TextExtractionStatus tracks the extraction work
// itself while ProcessingStatus tracks where the document sits in the overall
// pipeline.
type Document struct {
	ID                   uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	FileName             string                         `gorm:"not null" json:"file_name"`
	MIMEType             string                         `gorm:"not null" json:"mime_type"`
	SizeBytes            int64                          `gorm:"not null" json:"size_bytes"`
	SHA256               string                         `gorm:"size:64;not null;index" json:"sha256"`
	DocumentType         string                         `gorm:"size:50;not null;default:loan_application" json:"document_type"`
	StorageKey           string                         `gorm:"not null" json:"storage_key"`
	PageCount            int                            `gorm:"not null;default:0" json:"page_count"`
	TextExtractionStatus constants.TextExtractionStatus `gorm:"size:20;not null;index" json:"text_extraction_status"`
	ProcessingStatus     constants.ProcessingStatus     `gorm:"size:20;not null;index" json:"processing_status"`
	CreatedAt            time.Time                      `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time                      `gorm:"not null" json:"updated_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.TextExtractionStatus == "" {
		d.TextExtractionStatus = constants.TextNotReady
	}
	if d.ProcessingStatus == "" {
		d.ProcessingStatus = constants.ProcPendingExtraction
	}
	return nil
}

func (Document) TableName() string {
	return "documents"
}
