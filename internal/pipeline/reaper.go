package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/finovo/creditocr/constants"
	"github.com/finovo/creditocr/internal/repository"
)

// Reaper fails extraction jobs whose run died without landing a terminal
// status, e.g. after a crash. A job is considered stale once it has been
// non-terminal for longer than StaleAfter.
type Reaper struct {
	docs       repository.DocumentRepository
	jobs       repository.ExtractionJobRepository
	staleAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger
}

func NewReaper(docs repository.DocumentRepository, jobs repository.ExtractionJobRepository, staleAfter time.Duration, logger *slog.Logger) *Reaper {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		docs:       docs,
		jobs:       jobs,
		staleAfter: staleAfter,
		interval:   staleAfter / 2,
		logger:     logger,
	}
}

// Run reaps on a fixed interval until the context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				r.logger.Error("reaper.failed", "err", err)
			}
		}
	}
}

// ReapOnce fails every currently stale job and returns how many it reaped.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	stale, err := r.jobs.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, job := range stale {
		msg := "job exceeded processing deadline of " + r.staleAfter.String()
		if err := r.jobs.FinishFailure(ctx, job.ID, msg); err != nil {
			r.logger.Error("reaper.finish_failed", "job_id", job.ID, "err", err)
			continue
		}
		if err := r.docs.FinishText(ctx, job.DocumentID, constants.TextInProgress, constants.TextFailed); err != nil {
			r.logger.Warn("reaper.document_not_reset", "document_id", job.DocumentID, "err", err)
		}
		r.logger.Warn("reaper.reaped", "job_id", job.ID, "document_id", job.DocumentID)
		reaped++
	}
	return reaped, nil
}
