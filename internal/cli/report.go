package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/headcheck/internal/model"
	"github.com/ppiankov/headcheck/internal/pipeline"
	"github.com/ppiankov/headcheck/internal/store"
	"github.com/ppiankov/headcheck/internal/table"
)

var (
	reportModel    string
	reportTrialLog string
	reportRunID    string
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a model's prediction file",
	Long: `Report compares a model's baseline verdicts with the ground-truth column and
prints accuracy and mean self-agreement. When the file also carries chaining
results, mean confidence is split by correct and incorrect verdicts.

With --trial-log, retry statistics for each recorded run of the model are
listed as well (or only for --run).

Example:
  headcheck report --model gpt-4o-mini
  headcheck report --model llama3 --trial-log trials.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		path := cfg.Output.OutputPath(reportModel)
		t, err := table.Load(path)
		if err != nil {
			return fmt.Errorf("load predictions: %w", err)
		}

		r, err := pipeline.Summarize(t, reportModel, cfg.Data.TruthColumn)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "File:        %s\n", path)
		r.Render(cmd.OutOrStdout())

		trialLog := reportTrialLog
		if trialLog == "" {
			trialLog = cfg.TrialLog
		}
		if trialLog == "" {
			return nil
		}

		ledger, err := store.Open(trialLog)
		if err != nil {
			return fmt.Errorf("open trial log: %w", err)
		}
		defer func() { _ = ledger.Close() }()

		return renderTrialStats(cmd.Context(), cmd.OutOrStdout(), ledger, reportModel, reportRunID)
	},
}

// renderTrialStats prints retry statistics for the model's runs, or for runID alone
func renderTrialStats(ctx context.Context, w io.Writer, ledger *store.Store, modelName, runID string) error {
	var runs []model.Run
	if runID != "" {
		run, err := ledger.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		runs = []model.Run{*run}
	} else {
		var err error
		if runs, err = ledger.Runs(ctx, modelName); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\nTrial log (%d runs):\n", len(runs))
	for _, run := range runs {
		trials, err := ledger.Trials(ctx, run.ID)
		if err != nil {
			return err
		}
		pipeline.SummarizeTrials(run, trials).Render(w)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportModel, "model", "", "model whose prediction file to summarize")
	reportCmd.Flags().StringVar(&reportTrialLog, "trial-log", "", "SQLite trial log to read retry statistics from (optional)")
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "limit trial statistics to one run id")
	_ = reportCmd.MarkFlagRequired("model")
}
