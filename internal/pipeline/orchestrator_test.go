package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/finovo/creditocr/constants"
	"github.com/finovo/creditocr/internal/blobstore"
	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/entity"
	"github.com/finovo/creditocr/internal/geometry"
	"github.com/finovo/creditocr/internal/layout"
	"github.com/finovo/creditocr/internal/llm"
	"github.com/finovo/creditocr/internal/ocr"
	"github.com/finovo/creditocr/internal/repository"
)

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) ExtractDocument(ctx context.Context, raw []byte, mimeType string) ([]ocr.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []ocr.Page{{Number: 1, Fragments: []ocr.Fragment{
		{Text: "Loan Amount:", BBox: geometry.BBox{X1: 10, Y1: 100, X2: 120, Y2: 115}, Confidence: 0.95},
		{Text: "€2,000,000", BBox: geometry.BBox{X1: 140, Y1: 101, X2: 230, Y2: 116}, Confidence: 0.88},
	}}}, nil
}

// fakeFields can be told to fail its first failUntil calls before succeeding.
type fakeFields struct {
	failUntil int
	failWith  error
	cancel    context.CancelFunc
	calls     int
}

func (f *fakeFields) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.DocumentFields, []byte, error) {
	f.calls++
	if f.cancel != nil {
		f.cancel()
		return llm.DocumentFields{}, nil, ctx.Err()
	}
	if f.calls <= f.failUntil {
		return llm.DocumentFields{}, nil, f.failWith
	}
	return llm.DocumentFields{
		Extracted: map[string]llm.ExtractedField{
			"loan_amount": {Value: "2000000", Raw: "€2,000,000", Confidence: 0.88, Page: 1, Valid: true},
		},
		Missing: []string{"vat_id"},
	}, []byte(`{"extracted_fields":{"loan_amount":"€2,000,000"}}`), nil
}

type fakeAnnotator struct {
	err error
}

func (f fakeAnnotator) Render(ex *layout.Extraction) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

type fixture struct {
	docs  repository.DocumentRepository
	jobs  repository.ExtractionJobRepository
	blobs blobstore.Store
	doc   *entity.Document
}

func setupFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	log := slog.Default()
	docs := repository.NewDocumentRepository(db, log)
	jobs := repository.NewExtractionJobRepository(db, log)

	blobs, err := blobstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	doc := &entity.Document{
		FileName:  "facility-agreement.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 2048,
		SHA256:    uuid.NewString(),
	}
	require.NoError(t, docs.Create(ctx, doc))
	doc.StorageKey = blobstore.Key(doc.ID, constants.StageRaw, ".pdf")
	require.NoError(t, db.Model(doc).Update("storage_key", doc.StorageKey).Error)
	raw := []byte("%PDF-1.4 fake")
	require.NoError(t, blobs.Put(ctx, doc.StorageKey, bytes.NewReader(raw), int64(len(raw)), "application/pdf"))
	require.NoError(t, docs.MarkReady(ctx, doc.ID, 1))

	return fixture{docs: docs, jobs: jobs, blobs: blobs, doc: doc}
}

func newOrchestrator(f fixture, ext DocumentExtractor, fields llm.FieldExtractor, cfg Config) *Orchestrator {
	return NewOrchestrator(f.docs, f.jobs, f.blobs, ext, fields, fakeAnnotator{}, cfg, slog.Default())
}

func TestProcessSuccess(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	o := newOrchestrator(f, &fakeExtractor{}, &fakeFields{},
		Config{RetryBudget: 2, ModelName: "gpt-4o-mini", DrawOverlays: true})

	jobID, err := o.Process(ctx, f.doc.ID)
	require.NoError(t, err)

	doc, err := f.docs.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.TextCompleted, doc.TextExtractionStatus)
	assert.Equal(t, constants.ProcDone, doc.ProcessingStatus)

	job, err := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobDone, job.Status)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.ModelName)
	assert.Equal(t, "gpt-4o-mini", *job.ModelName)
	require.NotNil(t, job.Confidence)
	assert.InDelta(t, 0.88, *job.Confidence, 0.001)

	var fields llm.DocumentFields
	require.NoError(t, json.Unmarshal(job.Fields, &fields))
	assert.Equal(t, "2000000", fields.Extracted["loan_amount"].Value)
	assert.Equal(t, []string{"vat_id"}, fields.Missing)

	require.NotNil(t, job.OCRKey)
	require.NotNil(t, job.FieldsKey)
	require.NotNil(t, job.OverlayKey)
	for _, key := range []string{*job.OCRKey, *job.FieldsKey, *job.OverlayKey} {
		_, err := f.blobs.Stat(ctx, key)
		assert.NoError(t, err, key)
	}
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	fields := &fakeFields{
		failUntil: 1,
		failWith:  common.NewTransientStageError("llm", "rate limited", nil),
	}
	o := newOrchestrator(f, &fakeExtractor{}, fields, Config{RetryBudget: 2, ModelName: "m"})

	jobID, err := o.Process(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fields.calls)

	job, err := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobDone, job.Status)
	assert.Equal(t, 1, job.RetryCount)

	doc, err := f.docs.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.TextCompleted, doc.TextExtractionStatus)
	assert.Equal(t, constants.ProcDone, doc.ProcessingStatus)
}

func TestProcessTerminalFailureLandsFailed(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	fields := &fakeFields{
		failUntil: 99,
		failWith:  common.NewTerminalStageError("llm", "response failed schema validation", nil),
	}
	o := newOrchestrator(f, &fakeExtractor{}, fields, Config{RetryBudget: 2, ModelName: "m"})

	jobID, err := o.Process(ctx, f.doc.ID)
	require.Error(t, err)
	assert.Equal(t, 1, fields.calls)

	job, jerr := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, jerr)
	assert.Equal(t, constants.JobFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "schema validation")
	require.NotNil(t, job.CompletedAt)

	// The OCR artifact from the completed stage survives the failure.
	require.NotNil(t, job.OCRKey)
	_, serr := f.blobs.Stat(ctx, *job.OCRKey)
	assert.NoError(t, serr)
	assert.Nil(t, job.FieldsKey)

	doc, derr := f.docs.GetByID(ctx, f.doc.ID)
	require.NoError(t, derr)
	assert.Equal(t, constants.TextFailed, doc.TextExtractionStatus)
	assert.Equal(t, constants.ProcFailed, doc.ProcessingStatus)
}

func TestProcessExhaustsRetryBudget(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	fields := &fakeFields{
		failUntil: 99,
		failWith:  common.NewTransientStageError("llm", "upstream timeout", nil),
	}
	o := newOrchestrator(f, &fakeExtractor{}, fields, Config{RetryBudget: 2, ModelName: "m"})

	jobID, err := o.Process(ctx, f.doc.ID)
	require.Error(t, err)
	assert.Equal(t, 3, fields.calls)

	job, jerr := f.jobs.GetByID(ctx, jobID)
	require.NoError(t, jerr)
	assert.Equal(t, constants.JobFailed, job.Status)
	assert.Equal(t, 2, job.RetryCount)
}

func TestProcessRejectsUnreadyDocument(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	o := newOrchestrator(f, &fakeExtractor{}, &fakeFields{}, Config{ModelName: "m"})

	// First run claims the document and completes it; a second trigger finds
	// it in completed, not ready, and must be rejected without a ledger row.
	_, err := o.Process(ctx, f.doc.ID)
	require.NoError(t, err)

	_, err = o.Process(ctx, f.doc.ID)
	require.ErrorIs(t, err, common.ErrDocumentNotReady)

	jobs, err := f.jobs.ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestProcessCanceledContextFailsRun(t *testing.T) {
	f := setupFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fields := &fakeFields{cancel: cancel}
	o := newOrchestrator(f, &fakeExtractor{}, fields, Config{RetryBudget: 2, ModelName: "m"})

	jobID, err := o.Process(ctx, f.doc.ID)
	require.Error(t, err)

	job, jerr := f.jobs.GetByID(context.Background(), jobID)
	require.NoError(t, jerr)
	assert.Equal(t, constants.JobFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "processing aborted")
	// Cancellation is a system fault, never a retry.
	assert.Equal(t, 0, job.RetryCount)
}

func TestReaperFailsStaleJobs(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	job, err := f.jobs.Claim(ctx, f.doc.ID)
	require.NoError(t, err)

	r := NewReaper(f.docs, f.jobs, time.Nanosecond, slog.Default())
	time.Sleep(5 * time.Millisecond)

	reaped, err := r.ReapOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	got, err := f.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "deadline")

	doc, err := f.docs.GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.TextFailed, doc.TextExtractionStatus)
}
