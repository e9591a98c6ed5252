package constants

// TextExtractionStatus tracks whether a document is fit to be processed at all.
type TextExtractionStatus string

// Stable values (store these exact strings in DB).
const (
	TextNotReady   TextExtractionStatus = "not_ready"
	TextReady      TextExtractionStatus = "ready"
	TextInProgress TextExtractionStatus = "in_progress"
	TextCompleted  TextExtractionStatus = "completed"
	TextFailed     TextExtractionStatus = "failed"
)

// ProcessingStatus tracks which pipeline stage a document is currently in.
// Advanced only by the pipeline orchestrator.
type ProcessingStatus string

const (
	ProcPendingExtraction ProcessingStatus = "pending_extraction"
	ProcOCRRunning        ProcessingStatus = "ocr_running"
	ProcLLMRunning        ProcessingStatus = "llm_running"
	ProcDone              ProcessingStatus = "done"
	ProcFailed            ProcessingStatus = "failed"
)

// JobStatus is the canonical status for rows in extraction_jobs.
type JobStatus string

const (
	JobPendingExtraction JobStatus = "pending_extraction"
	JobDone              JobStatus = "done"
	JobFailed            JobStatus = "failed"
)

// Terminal reports whether a job status is terminal. Terminal jobs always
// carry a completed_at timestamp.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}
