package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/headcheck/internal/model"
	"github.com/ppiankov/headcheck/internal/table"
)

// Report summarizes a model's prediction file against the ground truth
type Report struct {
	Model string

	Evaluated int     // Rows with both a prediction and a ground-truth label
	Correct   int     // Evaluated rows whose prediction matches the label
	Accuracy  float64 // Correct / Evaluated
	Certainty float64 // Mean baseline agreement frequency over evaluated rows

	// Chaining summary, populated when the file carries chaining columns
	Chained            int
	ChainCorrectMean   float64 // Mean chaining certainty where the prediction was right
	ChainIncorrectMean float64 // Mean chaining certainty where it was wrong
}

// HasChain reports whether any chaining results were found
func (r *Report) HasChain() bool {
	return r.Chained > 0
}

// Summarize builds a Report for modelName from t, comparing {model}_p to truthCol
func Summarize(t *table.Table, modelName, truthCol string) (*Report, error) {
	predCol, certCol := model.ModeBaseline.Columns(modelName)
	chainCol, _ := model.ModeChain.Columns(modelName)

	rows, err := t.NonEmpty(predCol)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", modelName, err)
	}
	hasChain := t.HasColumn(chainCol)

	r := &Report{Model: modelName}
	var certSum, rightSum, wrongSum float64
	var right, wrong int

	for _, idx := range rows {
		truth, ok, err := t.Float(idx, truthCol)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", modelName, err)
		}
		if !ok {
			continue
		}
		pred, _, err := t.Float(idx, predCol)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", modelName, err)
		}
		cert, _, err := t.Float(idx, certCol)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", modelName, err)
		}

		r.Evaluated++
		certSum += cert
		correct := int(pred) == int(truth)
		if correct {
			r.Correct++
		}

		if !hasChain {
			continue
		}
		chained, ok, err := t.Float(idx, chainCol)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", modelName, err)
		}
		if !ok {
			continue
		}
		r.Chained++
		if correct {
			rightSum += chained
			right++
		} else {
			wrongSum += chained
			wrong++
		}
	}

	if r.Evaluated > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Evaluated)
		r.Certainty = certSum / float64(r.Evaluated)
	}
	if right > 0 {
		r.ChainCorrectMean = rightSum / float64(right)
	}
	if wrong > 0 {
		r.ChainIncorrectMean = wrongSum / float64(wrong)
	}
	return r, nil
}

// Render prints the report for humans
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "Model:       %s\n", r.Model)
	if r.Evaluated == 0 {
		fmt.Fprintln(w, "No labelled predictions found.")
		return
	}
	fmt.Fprintf(w, "Evaluated:   %d headlines\n", r.Evaluated)
	fmt.Fprintf(w, "Accuracy:    %.1f%% (%d/%d)\n", r.Accuracy*100, r.Correct, r.Evaluated)
	fmt.Fprintf(w, "Certainty:   %.3f mean agreement\n", r.Certainty)

	if r.HasChain() {
		fmt.Fprintf(w, "\nChaining (%d headlines):\n", r.Chained)
		fmt.Fprintf(w, "  when correct:   %.3f\n", r.ChainCorrectMean)
		fmt.Fprintf(w, "  when incorrect: %.3f\n", r.ChainIncorrectMean)
	}
}

// TrialStats summarizes the ledger entries of one run
type TrialStats struct {
	Run         model.Run
	Trials      int // Accepted replies
	Calls       int // Model calls, including format retries
	Retried     int // Trials that needed more than one call
	MaxAttempts int // Most calls spent on a single trial
}

// SummarizeTrials computes retry statistics for run from its trials
func SummarizeTrials(run model.Run, trials []model.Trial) TrialStats {
	st := TrialStats{Run: run, Trials: len(trials)}
	for _, t := range trials {
		st.Calls += t.Attempts
		if t.Attempts > 1 {
			st.Retried++
		}
		st.MaxAttempts = max(st.MaxAttempts, t.Attempts)
	}
	return st
}

// Render prints one line per run
func (st TrialStats) Render(w io.Writer) {
	status := "incomplete"
	if st.Run.CompletedAt != nil {
		status = st.Run.CompletedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "  %s  %-8s %-9s trials=%d calls=%d retried=%d max_attempts=%d  %s\n",
		st.Run.ID, st.Run.Mode, st.Run.Provider, st.Trials, st.Calls, st.Retried, st.MaxAttempts, status)
}
