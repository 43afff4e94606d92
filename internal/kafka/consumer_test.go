package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/habit-scoreboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	batches []domain.BatchSubmission
	err     error
}

func (h *recordingHandler) CreateSubmissionBatch(ctx context.Context, batch domain.BatchSubmission) (int, error) {
	h.batches = append(h.batches, batch)
	if h.err != nil {
		return 0, h.err
	}
	return len(batch.Submissions), nil
}

func message(t *testing.T, req domain.CreateSubmissionRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func TestBatcher_FlushesWhenFull(t *testing.T) {
	handler := &recordingHandler{}
	b := newBatcher(handler, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	valid := domain.CreateSubmissionRequest{
		UserID: "u1", HabitID: "h1", SubmissionDate: "2025-03-15", Points: 1, PerceivedRating: "ok",
	}

	assert.False(t, b.add([]byte("not json")))
	assert.False(t, b.add(message(t, domain.CreateSubmissionRequest{UserID: "u1"})))
	assert.False(t, b.add(message(t, valid)))
	assert.True(t, b.add(message(t, valid)))

	require.NoError(t, b.flush())
	require.Len(t, handler.batches, 1)
	assert.Len(t, handler.batches[0].Submissions, 2)

	// Flushing an empty batch is a no-op
	require.NoError(t, b.flush())
	assert.Len(t, handler.batches, 1)

	b.add(message(t, valid))
	require.NoError(t, b.flush())
	require.Len(t, handler.batches, 2)
	assert.Len(t, handler.batches[1].Submissions, 1)
	assert.Len(t, handler.batches[0].Submissions, 2)
}

func TestBatcher_FlushReportsHandlerFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	handler := &recordingHandler{err: storeErr}
	b := newBatcher(handler, 10, slog.New(slog.NewTextHandler(io.Discard, nil)))

	b.add(message(t, domain.CreateSubmissionRequest{
		UserID: "u1", HabitID: "h1", SubmissionDate: "2025-03-15", Points: 1, PerceivedRating: "ok",
	}))

	err := b.flush()
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Empty(t, b.pending)
}
