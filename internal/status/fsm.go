// Package status defines the legal transitions of the document status model.
// All checks are pure functions over the declared transition tables so the
// rules live in exactly one place; repositories and the orchestrator call in
// here before touching the database.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/finovo/creditocr/constants"
	"github.com/finovo/creditocr/internal/common"
)

var textTransitions = map[constants.TextExtractionStatus][]constants.TextExtractionStatus{
	// A readiness guard that raises terminally fails the document without it
	// ever becoming runnable.
	constants.TextNotReady:   {constants.TextReady, constants.TextFailed},
	constants.TextReady:      {constants.TextInProgress},
	constants.TextInProgress: {constants.TextCompleted, constants.TextFailed, constants.TextReady},
	constants.TextCompleted:  {constants.TextReady},
	constants.TextFailed:     {constants.TextReady},
}

// Every non-terminal processing state may land in failed directly; a run can
// die before its first stage ever advances.
var processingTransitions = map[constants.ProcessingStatus][]constants.ProcessingStatus{
	constants.ProcPendingExtraction: {constants.ProcOCRRunning, constants.ProcFailed},
	constants.ProcOCRRunning:        {constants.ProcLLMRunning, constants.ProcFailed, constants.ProcPendingExtraction},
	constants.ProcLLMRunning:        {constants.ProcDone, constants.ProcFailed, constants.ProcPendingExtraction},
	constants.ProcDone:              {constants.ProcPendingExtraction},
	constants.ProcFailed:            {constants.ProcPendingExtraction},
}

var jobTransitions = map[constants.JobStatus][]constants.JobStatus{
	constants.JobPendingExtraction: {constants.JobDone, constants.JobFailed},
}

// CheckTextTransition validates one step of the text-extraction axis.
func CheckTextTransition(from, to constants.TextExtractionStatus) error {
	if !contains(textTransitions[from], to) {
		return common.NewInvariantViolation("text_transition",
			fmt.Sprintf("illegal transition %s -> %s", from, to))
	}
	return nil
}

// CheckProcessingTransition validates one step of the processing axis.
func CheckProcessingTransition(from, to constants.ProcessingStatus) error {
	if !contains(processingTransitions[from], to) {
		return common.NewInvariantViolation("processing_transition",
			fmt.Sprintf("illegal transition %s -> %s", from, to))
	}
	return nil
}

// CheckJobTransition validates one step of the job ledger. Terminal job
// statuses have no outgoing transitions: a finished job is immutable.
func CheckJobTransition(from, to constants.JobStatus) error {
	if !contains(jobTransitions[from], to) {
		return common.NewInvariantViolation("job_transition",
			fmt.Sprintf("illegal transition %s -> %s", from, to))
	}
	return nil
}

// CheckFailure enforces that a failed status always carries a non-empty,
// human-readable error message.
func CheckFailure(errorMessage *string) error {
	if errorMessage == nil || strings.TrimSpace(*errorMessage) == "" {
		return common.NewInvariantViolation("failure_message",
			"failed status requires a non-empty error message")
	}
	return nil
}

// CheckJobCompletion enforces that a terminal job carries a completion
// timestamp and a running job does not.
func CheckJobCompletion(s constants.JobStatus, completedAt *time.Time) error {
	if s.Terminal() && completedAt == nil {
		return common.NewInvariantViolation("job_completion",
			fmt.Sprintf("terminal job status %s requires completed_at", s))
	}
	if !s.Terminal() && completedAt != nil {
		return common.NewInvariantViolation("job_completion",
			fmt.Sprintf("non-terminal job status %s must not have completed_at", s))
	}
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
