package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/finovo/creditocr/internal/dms"
)

// uploadDocument accepts a multipart upload and registers the document.
// POST /api/documents
func (s *Server) uploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		s.logger.Error("upload.open_failed", "file_name", fileHeader.Filename, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.logger.Error("upload.read_failed", "file_name", fileHeader.Filename, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read upload"})
		return
	}

	res, err := s.dms.Upload(c.Request.Context(), dms.UploadRequest{
		FileName:     fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		DocumentType: c.PostForm("document_type"),
		Data:         data,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Deduplicated {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"document":     res.Document,
		"deduplicated": res.Deduplicated,
	})
}

// processDocument queues an extraction run.
// POST /api/documents/:id/process
func (s *Server) processDocument(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	if err := s.dms.Trigger(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"document_id": id, "status": "queued"})
}

// documentStatus reports both status axes plus the latest ledger entries.
// GET /api/documents/:id/status
func (s *Server) documentStatus(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	st, err := s.dms.Status(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"document":       st.Document,
		"latest_job":     st.LatestJob,
		"last_completed": st.LastCompleted,
	})
}

// documentResults returns the most recent completed extraction.
// GET /api/documents/:id/results
func (s *Server) documentResults(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	view, err := s.dms.Results(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":           view.JobID,
		"model_name":       view.ModelName,
		"confidence":       view.Confidence,
		"extracted_fields": view.Fields.Extracted,
		"missing_fields":   view.Fields.Missing,
		"artifacts": gin.H{
			"ocr":     view.OCRKey,
			"fields":  view.FieldsKey,
			"overlay": view.OverlayKey,
		},
	})
}

// documentJobs lists the full extraction ledger of a document.
// GET /api/documents/:id/jobs
func (s *Server) documentJobs(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	jobs, err := s.dms.Jobs(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// listDocuments returns documents newest first.
// GET /api/documents?limit=&offset=
func (s *Server) listDocuments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := s.dms.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// exportDocument streams the latest extraction as an XLSX workbook.
// GET /api/documents/:id/export
func (s *Server) exportDocument(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	data, err := s.export.ExportFieldsXLSX(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="extraction-`+id.String()+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (s *Server) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
