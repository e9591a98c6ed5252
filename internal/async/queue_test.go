package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
	err  error
}

func (p *recordingProcessor) Process(ctx context.Context, documentID uuid.UUID) (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, documentID)
	return uuid.New(), p.err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func TestQueueProcessesJobs(t *testing.T) {
	proc := &recordingProcessor{}
	q := NewPipelineQueue(proc, slog.Default(), WithWorkers(2))

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: id}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, len(ids), proc.count())
}

func TestQueueSurvivesProcessorError(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("boom")}
	q := NewPipelineQueue(proc, slog.Default(), WithWorkers(1), WithQueueSize(4))

	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: uuid.New()}))
	require.NoError(t, q.Enqueue(context.Background(), Job{DocumentID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, 2, proc.count())
}

func TestQueueRejectsAfterShutdown(t *testing.T) {
	proc := &recordingProcessor{}
	q := NewPipelineQueue(proc, slog.Default(), WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
	q.Shutdown(ctx) // idempotent

	err := q.Enqueue(context.Background(), Job{DocumentID: uuid.New()})
	require.ErrorIs(t, err, ErrQueueClosed)
	assert.Equal(t, 0, proc.count())
}
