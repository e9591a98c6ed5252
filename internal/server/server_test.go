package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/finovo/creditocr/internal/async"
	"github.com/finovo/creditocr/internal/blobstore"
	"github.com/finovo/creditocr/internal/dms"
	"github.com/finovo/creditocr/internal/export"
	"github.com/finovo/creditocr/internal/repository"
)

type captureQueue struct {
	jobs []async.Job
	err  error
}

func (q *captureQueue) Enqueue(_ context.Context, job async.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newTestServer(t *testing.T) (*Server, *captureQueue, repository.ExtractionJobRepository) {
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

	queue := &captureQueue{}
	dmsSvc := dms.NewService(docs, jobs, blobs, queue, log)
	exportSvc := export.NewService(docs, jobs, log)
	return New(dmsSvc, exportSvc, log), queue, jobs
}

var testPDF = []byte("%PDF-1.4\n1 0 obj << /Type /Page >> endobj\n%%EOF")

func uploadRequest(t *testing.T, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doUpload(t *testing.T, srv *Server, fileName string, data []byte) uuid.UUID {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, fileName, data))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return uuid.MustParse(body.Document.ID)
}

func TestUploadDocument(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "facility-agreement.pdf", testPDF))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Document struct {
			ID                   string `json:"id"`
			FileName             string `json:"file_name"`
			TextExtractionStatus string `json:"text_extraction_status"`
		} `json:"document"`
		Deduplicated bool `json:"deduplicated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "facility-agreement.pdf", body.Document.FileName)
	assert.Equal(t, "ready", body.Document.TextExtractionStatus)
	assert.False(t, body.Deduplicated)

	// Same bytes again: deduplicated, 200 instead of 201.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "copy.pdf", testPDF))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deduplicated":true`)
}

func TestUploadUnsupportedExtensionStaysNotReady(t *testing.T) {
	srv, queue, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, uploadRequest(t, "notes.txt", []byte("hello")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Document struct {
			ID                   string `json:"id"`
			TextExtractionStatus string `json:"text_extraction_status"`
		} `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Document.TextExtractionStatus)

	// The stored document is not runnable.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/"+body.Document.ID+"/process", nil)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, queue.jobs)
}

func TestUploadRequiresFile(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessQueuesExtraction(t *testing.T) {
	srv, queue, _ := newTestServer(t)
	id := doUpload(t, srv, "a.pdf", testPDF)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/"+id.String()+"/process", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, id, queue.jobs[0].DocumentID)
}

func TestProcessConflictsWhileRunning(t *testing.T) {
	srv, queue, jobs := newTestServer(t)
	id := doUpload(t, srv, "a.pdf", testPDF)

	_, err := jobs.Claim(context.Background(), id)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/"+id.String()+"/process", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, queue.jobs)
}

func TestProcessUnavailableDuringShutdown(t *testing.T) {
	srv, queue, _ := newTestServer(t)
	id := doUpload(t, srv, "a.pdf", testPDF)

	queue.err = async.ErrQueueClosed
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/"+id.String()+"/process", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, queue.jobs)
}

func TestDocumentStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := doUpload(t, srv, "a.pdf", testPDF)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+id.String()+"/status", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Document struct {
			TextExtractionStatus string `json:"text_extraction_status"`
			ProcessingStatus     string `json:"processing_status"`
		} `json:"document"`
		LatestJob struct {
			Status string `json:"status"`
		} `json:"latest_job"`
		LastCompleted any `json:"last_completed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Document.TextExtractionStatus)
	assert.Equal(t, "pending_extraction", body.Document.ProcessingStatus)
	// The upload already opened the initial ledger entry.
	assert.Equal(t, "pending_extraction", body.LatestJob.Status)
	assert.Nil(t, body.LastCompleted)
}

func TestDocumentResultsNotFoundBeforeCompletion(t *testing.T) {
	srv, _, _ := newTestServer(t)
	id := doUpload(t, srv, "a.pdf", testPDF)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+id.String()+"/results", nil)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownDocument(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+uuid.NewString()+"/status", nil)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedDocumentID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/not-a-uuid/status", nil)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDocuments(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doUpload(t, srv, "a.pdf", testPDF)
	doUpload(t, srv, "b.pdf", append(testPDF, ' '))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Documents []json.RawMessage `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Documents, 2)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
