package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/headcheck/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := model.Run{
		ID:         uuid.NewString(),
		Model:      "gpt-4o-mini",
		Provider:   "openai",
		Mode:       model.ModeBaseline,
		Iterations: 3,
		SampleSize: 20,
		StartedAt:  started,
	}
	require.NoError(t, s.StartRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Model, got.Model)
	assert.Equal(t, model.ModeBaseline, got.Mode)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.CompletedAt)

	done := started.Add(time.Minute)
	require.NoError(t, s.FinishRun(ctx, run.ID, done))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
}

func TestStore_Trials(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	runID := uuid.NewString()
	require.NoError(t, s.StartRun(ctx, model.Run{ID: runID, Model: "m", Provider: "ollama", Mode: model.ModeChain, StartedAt: time.Now()}))

	at := time.Now()
	for _, tr := range []model.Trial{
		{RunID: runID, Index: 7, Iteration: 1, Reply: "3", Value: 3, Attempts: 1, At: at},
		{RunID: runID, Index: 2, Iteration: 0, Reply: "5", Value: 5, Attempts: 2, At: at},
		{RunID: runID, Index: 7, Iteration: 0, Reply: "1", Value: 1, Attempts: 1, At: at},
	} {
		require.NoError(t, s.RecordTrial(ctx, tr))
	}

	trials, err := s.Trials(ctx, runID)
	require.NoError(t, err)
	require.Len(t, trials, 3)

	assert.Equal(t, 2, trials[0].Index)
	assert.Equal(t, 2, trials[0].Attempts)
	assert.Equal(t, 7, trials[1].Index)
	assert.Equal(t, 0, trials[1].Iteration)
	assert.Equal(t, "3", trials[2].Reply)
}

func TestStore_DuplicateTrialRejected(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	runID := uuid.NewString()
	require.NoError(t, s.StartRun(ctx, model.Run{ID: runID, Model: "m", Provider: "p", Mode: model.ModeBaseline, StartedAt: time.Now()}))

	tr := model.Trial{RunID: runID, Index: 1, Iteration: 0, Reply: "real", Value: 1, Attempts: 1, At: time.Now()}
	require.NoError(t, s.RecordTrial(ctx, tr))
	assert.Error(t, s.RecordTrial(ctx, tr))
}

func TestStore_FinishUnknownRun(t *testing.T) {
	s := openTemp(t)
	assert.Error(t, s.FinishRun(context.Background(), "nope", time.Now()))
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trials.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	runID := uuid.NewString()
	require.NoError(t, s.StartRun(ctx, model.Run{ID: runID, Model: "m", Provider: "p", Mode: model.ModeBaseline, StartedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.GetRun(ctx, runID)
	assert.NoError(t, err)
}

func TestStore_Runs(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, r := range []model.Run{
		{ID: "b", Model: "llama3", Provider: "ollama", Mode: model.ModeChain, StartedAt: base.Add(time.Hour)},
		{ID: "a", Model: "llama3", Provider: "ollama", Mode: model.ModeBaseline, StartedAt: base},
		{ID: "c", Model: "gpt-4o-mini", Provider: "openai", Mode: model.ModeBaseline, StartedAt: base},
	} {
		require.NoError(t, s.StartRun(ctx, r), "run %d", i)
	}
	require.NoError(t, s.FinishRun(ctx, "a", base.Add(time.Minute)))

	runs, err := s.Runs(ctx, "llama3")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, model.ModeBaseline, runs[0].Mode)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Equal(t, "b", runs[1].ID)
	assert.Nil(t, runs[1].CompletedAt)

	none, err := s.Runs(ctx, "claude-haiku-4-5")
	require.NoError(t, err)
	assert.Empty(t, none)
}
