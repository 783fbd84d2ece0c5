package pipeline

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/headcheck/internal/invoke"
	"github.com/ppiankov/headcheck/internal/llm"
	"github.com/ppiankov/headcheck/internal/llm/llmtest"
	"github.com/ppiankov/headcheck/internal/model"
	"github.com/ppiankov/headcheck/internal/sample"
	"github.com/ppiankov/headcheck/internal/store"
	"github.com/ppiankov/headcheck/internal/table"
)

const headlinesCSV = `,Headline,Real
0,Local council approves new park budget,1
1,Scientists confirm the moon is made of cheese,0
2,<b>Storm</b> closes schools across the region,1
`

// testConfig points a config at a temp dir holding headlinesCSV
func testConfig(t *testing.T) *model.Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "headlines.csv")
	require.NoError(t, os.WriteFile(src, []byte(headlinesCSV), 0644))

	cfg := model.DefaultConfig()
	cfg.Data.Headlines = src
	cfg.Output.Pattern = filepath.Join(dir, "out", "pred_{model}.csv")
	cfg.Sample.Seed = 42
	cfg.RateLimiting.RequestsPerSecond = 0
	return cfg
}

func TestRun_BaselineAlwaysReal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sample.Size = 1
	provider := &llmtest.Scripted{Repeat: "Real."}

	res, err := NewPipeline(cfg, provider).Run(context.Background(), model.ModeBaseline, "gpt-test", 3)
	require.NoError(t, err)

	require.Len(t, res.Aggregates, 1)
	assert.Equal(t, 1.0, res.Aggregates[0].First)
	assert.Equal(t, 1.0, res.Aggregates[0].Second)
	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, [2]string{"gpt-test_p", "gpt-test_c"}, res.Columns)

	saved, err := table.Load(res.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Len(), "unsampled rows are kept")

	filled, err := saved.NonEmpty("gpt-test_p")
	require.NoError(t, err)
	require.Len(t, filled, 1)

	pred, err := saved.Value(filled[0], "gpt-test_p")
	require.NoError(t, err)
	assert.Equal(t, "1", pred)
	cert, err := saved.Value(filled[0], "gpt-test_c")
	require.NoError(t, err)
	assert.Equal(t, "1", cert)
}

func TestRun_BaselineMajorityAndFrequency(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sample.Size = 1
	provider := &llmtest.Scripted{Replies: []string{"fake", "real", "fake news", "FAKE"}}

	res, err := NewPipeline(cfg, provider).Run(context.Background(), model.ModeBaseline, "gpt-test", 4)
	require.NoError(t, err)

	require.Len(t, res.Aggregates, 1)
	assert.Equal(t, 0.0, res.Aggregates[0].First)
	assert.Equal(t, 0.75, res.Aggregates[0].Second)
}

func TestRun_CleansMarkupBeforePrompting(t *testing.T) {
	cfg := testConfig(t)
	provider := &llmtest.Scripted{Repeat: "real"}

	_, err := NewPipeline(cfg, provider).Run(context.Background(), model.ModeBaseline, "m", 1)
	require.NoError(t, err)

	var users []string
	for _, req := range provider.Requests() {
		users = append(users, req.User)
	}
	assert.Contains(t, users, "Storm closes schools across the region")
}

func TestRun_ChainRatings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sample.Size = 1
	ctx := context.Background()

	// Only row 1 carries a baseline prediction
	prior := `,Headline,Real,llama3_p,llama3_c
0,Local council approves new park budget,1,,
1,Scientists confirm the moon is made of cheese,0,1,0.6
2,Storm closes schools across the region,1,,
`
	path := cfg.Output.OutputPath("llama3")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(prior), 0644))

	provider := &llmtest.Scripted{Replies: []string{"1", "5", "1", "3"}}
	res, err := NewPipeline(cfg, provider).Run(ctx, model.ModeChain, "llama3", 4)
	require.NoError(t, err)

	require.Len(t, res.Aggregates, 1)
	agg := res.Aggregates[0]
	assert.Equal(t, 1, agg.Index)
	assert.InDelta(t, 0.375, agg.First, 1e-12)
	assert.InDelta(t, math.Sqrt(0.171875), agg.Second, 1e-12)

	for _, req := range provider.Requests() {
		assert.Contains(t, req.System, "headline is 'real'")
	}

	saved, err := table.Load(path)
	require.NoError(t, err)
	for _, col := range []string{"llama3_p", "llama3_c", "llama3_chain_c", "llama3_chain_std"} {
		assert.True(t, saved.HasColumn(col), col)
	}
	prevCert, err := saved.Value(1, "llama3_c")
	require.NoError(t, err)
	assert.Equal(t, "0.6", prevCert, "baseline columns survive the chaining merge")
	chained, err := saved.Value(1, "llama3_chain_c")
	require.NoError(t, err)
	assert.Equal(t, "0.375", chained)
}

func TestRun_ChainFakePrediction(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	provider := &llmtest.Scripted{Repeat: "fake"}
	_, err := NewPipeline(cfg, provider).Run(ctx, model.ModeBaseline, "m", 1)
	require.NoError(t, err)

	rater := &llmtest.Scripted{Repeat: "4"}
	res, err := NewPipeline(cfg, rater).Run(ctx, model.ModeChain, "m", 2)
	require.NoError(t, err)
	assert.Len(t, res.Aggregates, 3)

	for _, req := range rater.Requests() {
		assert.Contains(t, req.System, "headline is 'fake'")
	}
	for _, a := range res.Aggregates {
		assert.Equal(t, 0.75, a.First)
		assert.Equal(t, 0.0, a.Second)
	}
}

func TestRun_ChainRejectsLlama2(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Headlines = filepath.Join(t.TempDir(), "missing.csv")
	provider := &llmtest.Scripted{Repeat: "3"}

	_, err := NewPipeline(cfg, provider).Run(context.Background(), model.ModeChain, "llama2", 2)
	require.ErrorIs(t, err, ErrUnsupportedModel)
	assert.Zero(t, provider.Calls())
}

func TestRun_ChainWithoutBaselineFile(t *testing.T) {
	cfg := testConfig(t)
	provider := &llmtest.Scripted{Repeat: "3"}

	_, err := NewPipeline(cfg, provider).Run(context.Background(), model.ModeChain, "gpt-test", 2)
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Zero(t, provider.Calls())
}

func TestRun_InvalidIterations(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewPipeline(cfg, &llmtest.Scripted{}).Run(context.Background(), model.ModeBaseline, "m", 0)
	assert.ErrorIs(t, err, ErrInvalidIterations)
}

func TestRun_RetriesExhaustedAbortsRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retry.MaxAttempts = 2
	provider := &llmtest.Scripted{Repeat: "maybe"}

	p := NewPipeline(cfg, provider)
	_, err := p.Run(context.Background(), model.ModeBaseline, "m", 1)
	require.ErrorIs(t, err, invoke.ErrRetriesExhausted)
	assert.Equal(t, 2, provider.Calls())

	_, statErr := os.Stat(cfg.Output.OutputPath("m"))
	assert.ErrorIs(t, statErr, fs.ErrNotExist, "nothing is persisted")
}

func TestRun_SampleSizeBoundsHeadlines(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sample.Size = 2
	provider := &llmtest.Scripted{Repeat: "real"}

	res, err := NewPipeline(cfg, provider, WithSampler(sample.New(7))).
		Run(context.Background(), model.ModeBaseline, "m", 2)
	require.NoError(t, err)

	assert.Len(t, res.Aggregates, 2)
	assert.Equal(t, 4, provider.Calls())
	assert.Equal(t, 2, res.Run.SampleSize)
}

func TestRun_LocalRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimiting.RequestsPerSecond = 0
	cfg.RateLimiting.BurstSize = 1
	cfg.RateLimiting.LocalRequestsPerSecond = 0.001

	// Locally served: the second call waits far past the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	local := &llmtest.Scripted{Repeat: "real", Kind: llm.BackendLocalServed}
	_, err := NewPipeline(cfg, local).Run(ctx, model.ModeBaseline, "llama3", 1)
	require.Error(t, err)
	assert.Equal(t, 1, local.Calls())

	// Hosted backends keep the unlimited default rate
	hosted := &llmtest.Scripted{Repeat: "real", Kind: llm.BackendHosted}
	_, err = NewPipeline(cfg, hosted).Run(context.Background(), model.ModeBaseline, "gpt-test", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, hosted.Calls())
}

func TestRun_LogsProgress(t *testing.T) {
	cfg := testConfig(t)
	core, logs := observer.New(zap.InfoLevel)
	provider := &llmtest.Scripted{Replies: []string{"unsure", "real", "fake", "real"}}

	_, err := NewPipeline(cfg, provider, WithLogger(zap.New(core))).
		Run(context.Background(), model.ModeBaseline, "m", 1)
	require.NoError(t, err)

	assert.Equal(t, 3, logs.FilterMessage("headline aggregated").Len())
	assert.Equal(t, 1, logs.FilterMessage("rerunning model call due to format issues").Len())
	assert.Equal(t, 1, logs.FilterMessage("run complete").Len())
}

func TestRun_RecordsTrialLedger(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	ledger, err := store.Open(filepath.Join(t.TempDir(), "trials.db"))
	require.NoError(t, err)
	defer func() { _ = ledger.Close() }()

	provider := &llmtest.Scripted{Replies: []string{"real", "fake", "nope", "real", "fake", "real", "fake"}, ProviderName: "ollama"}
	res, err := NewPipeline(cfg, provider, WithLedger(ledger)).Run(ctx, model.ModeBaseline, "m", 2)
	require.NoError(t, err)

	run, err := ledger.GetRun(ctx, res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, "ollama", run.Provider)
	assert.Equal(t, 3, run.SampleSize)
	require.NotNil(t, run.CompletedAt)

	trials, err := ledger.Trials(ctx, res.Run.ID)
	require.NoError(t, err)
	assert.Len(t, trials, 6)

	attempts := 0
	for _, tr := range trials {
		attempts += tr.Attempts
	}
	assert.Equal(t, 7, attempts)
}

type failingLedger struct{}

func (failingLedger) StartRun(context.Context, model.Run) error { return assert.AnError }
func (failingLedger) RecordTrial(context.Context, model.Trial) error { return nil }
func (failingLedger) FinishRun(context.Context, string, time.Time) error { return nil }

func TestRun_LedgerFailureStopsRun(t *testing.T) {
	cfg := testConfig(t)
	provider := &llmtest.Scripted{Repeat: "real"}

	_, err := NewPipeline(cfg, provider, WithLedger(failingLedger{})).
		Run(context.Background(), model.ModeBaseline, "m", 1)
	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, provider.Calls())
}

func TestPersist_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pred.csv")

	result := table.New("Headline", "Real")
	require.NoError(t, result.AppendRow(4, []string{"a", "1"}))
	require.NoError(t, result.AppendRow(9, []string{"b", "0"}))
	result.SetColumn("m_p", map[int]string{9: "0"})
	result.SetColumn("m_c", map[int]string{9: "0.6666666666666666"})

	require.NoError(t, Persist(path, result, "m_p", "m_c"))

	loaded, err := table.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 9}, loaded.Indices())

	c, ok, err := loaded.Float(9, "m_c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0/3.0, c)

	_, ok, err = loaded.Float(4, "m_p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersist_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pred.csv")

	result := table.New("Headline")
	require.NoError(t, result.AppendRow(0, []string{"a"}))
	result.SetColumn("m_p", map[int]string{0: "1"})
	result.SetColumn("m_c", map[int]string{0: "1"})

	require.NoError(t, Persist(path, result, "m_p", "m_c"))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Persist(path, result, "m_p", "m_c"))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, strings.Count(strings.SplitN(string(second), "\n", 2)[0], "m_p"))
}
