package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/headcheck/internal/llm"
	"github.com/ppiankov/headcheck/internal/model"
	"github.com/ppiankov/headcheck/internal/pipeline"
	"github.com/ppiankov/headcheck/internal/store"
)

// runOptions are the flags shared by the baseline and chain commands
type runOptions struct {
	model      string
	iterations int
	provider   string
	trialLog   string
}

var baselineOpts, chainOpts runOptions

// baselineCmd represents the baseline command
var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Classify sampled headlines as real or fake",
	Long: `Baseline samples headlines and asks the model, once per iteration, whether
each is real or fake. The majority verdict ({model}_p) and the fraction of
iterations that agreed with it ({model}_c) are merged into the model's
prediction file.

Example:
  headcheck baseline --model gpt-4o-mini --iterations 10
  headcheck baseline --model llama3 --iterations 5 --trial-log trials.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluation(cmd, model.ModeBaseline, baselineOpts)
	},
}

// chainCmd represents the chain command
var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Rate confidence in a model's recorded baseline verdicts",
	Long: `Chain samples headlines that already carry a baseline verdict for the model
and asks the model to rate, 1 to 5, how confident it is in that verdict. The
mean normalized rating ({model}_chain_c) and its standard deviation
({model}_chain_std) are merged into the same prediction file.

Run baseline for the model first.

Example:
  headcheck chain --model gpt-4o-mini --iterations 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluation(cmd, model.ModeChain, chainOpts)
	},
}

func init() {
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(chainCmd)

	for _, c := range []struct {
		cmd  *cobra.Command
		opts *runOptions
	}{{baselineCmd, &baselineOpts}, {chainCmd, &chainOpts}} {
		c.cmd.Flags().StringVar(&c.opts.model, "model", "", "model name (prompted when omitted)")
		c.cmd.Flags().IntVar(&c.opts.iterations, "iterations", 0, "trials per headline (prompted when omitted)")
		c.cmd.Flags().StringVar(&c.opts.provider, "provider", "", "LLM provider (openai, anthropic, gemini, ollama); resolved from the model name when omitted")
		c.cmd.Flags().StringVar(&c.opts.trialLog, "trial-log", "", "SQLite file recording every trial (optional)")
	}
}

func runEvaluation(cmd *cobra.Command, mode model.Mode, opts runOptions) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.ErrOrStderr()

	modelName := opts.model
	if modelName == "" {
		modelName = cfg.LLM.Model
	}
	if modelName == "" {
		if modelName, err = ask(in, out, "LLM Model: "); err != nil {
			return err
		}
		if modelName == "" {
			return fmt.Errorf("model name is required")
		}
	}

	iterations := opts.iterations
	if iterations == 0 {
		answer, err := ask(in, out, "Number of Iterations: ")
		if err != nil {
			return err
		}
		if iterations, err = parseIterations(answer); err != nil {
			return err
		}
	}
	if iterations < 1 {
		return fmt.Errorf("%w: got %d", pipeline.ErrInvalidIterations, iterations)
	}

	if opts.provider != "" {
		cfg.LLM.Provider = opts.provider
	}
	if opts.trialLog != "" {
		cfg.TrialLog = opts.trialLog
	}
	cfg.LLM.Model = modelName

	provider, err := newProvider(cfg.LLM)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pipeOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.TrialLog != "" {
		ledger, err := store.Open(cfg.TrialLog)
		if err != nil {
			return fmt.Errorf("open trial log: %w", err)
		}
		defer func() { _ = ledger.Close() }()
		pipeOpts = append(pipeOpts, pipeline.WithLedger(ledger))
	}

	if verbose {
		fmt.Fprintf(out, "Model: %s (%s, %s)\n", modelName, provider.Name(), provider.Backend())
		fmt.Fprintf(out, "Mode: %s, iterations: %d, sample: %d\n", mode, iterations, cfg.Sample.Size)
		fmt.Fprintln(out)
	}

	res, err := pipeline.NewPipeline(cfg, provider, pipeOpts...).Run(ctx, mode, modelName, iterations)
	if err != nil {
		return fmt.Errorf("%s run failed: %w", mode, err)
	}

	fmt.Fprintf(out, "✓ Evaluated %d headlines x %d iterations with %s\n", len(res.Aggregates), iterations, modelName)
	fmt.Fprintf(out, "✓ Wrote %s (%s, %s)\n", res.Path, res.Columns[0], res.Columns[1])
	if cfg.TrialLog != "" {
		fmt.Fprintf(out, "✓ Logged trials to %s (run %s)\n", cfg.TrialLog, res.Run.ID)
	}
	return nil
}

// newProvider builds the provider for cfg, filling the API key or Ollama
// endpoint from the environment when the config leaves them empty
func newProvider(cfg model.LLMConfig) (llm.Provider, error) {
	llmCfg := llm.ConfigFromModel(cfg)
	name := llmCfg.Provider
	if name == "" {
		name = llm.ResolveProvider(llmCfg.Model)
	}

	if env := llm.APIKeyEnv(name); env != "" && llmCfg.APIKey == "" {
		llmCfg.APIKey = os.Getenv(env)
		if llmCfg.APIKey == "" {
			return nil, fmt.Errorf("%s environment variable not set: %w", env, llm.ErrMissingAPIKey)
		}
	}
	if name == llm.ProviderOllama && llmCfg.BaseURL == "" {
		llmCfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}
	if logger != nil {
		logger.Debug("provider ready", zap.String("provider", provider.Name()), zap.String("backend", provider.Backend().String()))
	}
	return provider, nil
}

// ask prints label and reads one trimmed line
func ask(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}

// parseIterations accepts a positive integer
func parseIterations(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", pipeline.ErrInvalidIterations, s)
	}
	return n, nil
}
