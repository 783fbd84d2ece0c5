package model

import "time"

// Mode selects which evaluation pass a run performs
type Mode string

const (
	ModeBaseline Mode = "baseline" // Direct real/fake classification
	ModeChain    Mode = "chain"    // Confidence rating of a prior classification
)

// Columns returns the pair of column names a run adds for the given model.
// Baseline: {model}_p, {model}_c. Chaining: {model}_chain_c, {model}_chain_std.
func (m Mode) Columns(modelName string) (string, string) {
	if m == ModeChain {
		return modelName + "_chain_c", modelName + "_chain_std"
	}
	return modelName + "_p", modelName + "_c"
}

// PredictionColumn is the baseline prediction column chaining reads from
func PredictionColumn(modelName string) string {
	return modelName + "_p"
}

// Trial is a single model invocation for one headline
type Trial struct {
	RunID     string    `json:"run_id"`
	Index     int       `json:"index"`     // Headline row index
	Iteration int       `json:"iteration"` // 0-based
	Reply     string    `json:"reply"`     // Normalized reply that was accepted
	Value     int       `json:"value"`     // Class (baseline) or rating 1-5 (chain)
	Attempts  int       `json:"attempts"`  // Model calls spent, including format retries
	At        time.Time `json:"at"`
}

// Aggregate is the per-headline outcome of a run.
//
// Baseline: First is the majority class, Second its agreement frequency.
// Chaining: First is the mean normalized rating, Second its population std.
type Aggregate struct {
	Index  int     `json:"index"`
	First  float64 `json:"first"`
	Second float64 `json:"second"`
}

// Run describes one evaluation pass
type Run struct {
	ID          string     `json:"id"`
	Model       string     `json:"model"`
	Provider    string     `json:"provider"`
	Mode        Mode       `json:"mode"`
	Iterations  int        `json:"iterations"`
	SampleSize  int        `json:"sample_size"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
