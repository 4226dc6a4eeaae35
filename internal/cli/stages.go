package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/hopqa/internal/cache"
	"github.com/ppiankov/hopqa/internal/llm"
	"github.com/ppiankov/hopqa/internal/logging"
	"github.com/ppiankov/hopqa/internal/metrics"
	"github.com/ppiankov/hopqa/internal/model"
	"github.com/ppiankov/hopqa/internal/pipeline"
	"github.com/ppiankov/hopqa/internal/report"
	"github.com/ppiankov/hopqa/internal/worker"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Stage 1: generate candidate questions from caption logs",
	Long: `Reads every <unit>.json caption file in paths.caption_dir (restricted to
range.start..range.end of the sorted list) and asks the text oracle for
multi-hop questions. Units with an existing output file are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), false, "qa_generation")
	},
}

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Stage 2: reject candidates citing a segment twice",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), false, "deduplication")
	},
}

var leakageCmd = &cobra.Command{
	Use:   "leakage",
	Short: "Stage 3: quarantine questions that leak their answer",
	Long: `Numbers every deduplicated candidate, audits them in batches, archives
the flagged ones in the leakage ledger and writes cleaned copies of every
file. Each phase is checkpointed and skipped on re-run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), false, "leakage_check")
	},
}

var logicCmd = &cobra.Command{
	Use:   "logic",
	Short: "Stage 4: verify answers follow from the cited segments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), false, "logic_check")
	},
}

var necessityCmd = &cobra.Command{
	Use:   "necessity",
	Short: "Stage 5: verify every cited segment is needed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), false, "necessity_check")
	},
}

var visualCmd = &cobra.Command{
	Use:   "visual",
	Short: "Stage 6: verify answers against the video clips",
	Long: `Sends the clips cited by each candidate to the vision oracle. Rejected
candidates are dropped, incorrect answers are replaced by the refined answer
and marked REFINED.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), true, "video_verification")
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all six stages in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd.Context(), true)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd, dedupCmd, leakageCmd, logicCmd, necessityCmd, visualCmd, runCmd)
}

// runStages builds the pipeline from configuration and runs the named
// stages in pipeline order. No names means every stage.
func runStages(parent context.Context, withVision bool, names ...string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	rec := metrics.NewRecorder()
	p, err := buildPipeline(cfg, withVision, logger, rec)
	if err != nil {
		return err
	}

	printHeader(cfg, names)
	start := time.Now()

	var tallies []*report.Tally
	var runErr error
	if len(names) == 0 {
		tallies, runErr = p.Run(ctx)
	} else {
		tallies, runErr = runSelected(ctx, p, names)
	}

	printSummary(tallies, time.Since(start))

	if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("metrics export failed", zap.Error(err))
	}
	return runErr
}

// runSelected runs only the named stages, still in pipeline order
func runSelected(ctx context.Context, p *pipeline.Pipeline, names []string) ([]*report.Tally, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var tallies []*report.Tally
	for _, step := range p.Steps() {
		if !want[step.Name] {
			continue
		}
		tally, err := step.Run(ctx)
		if tally != nil {
			tallies = append(tallies, tally)
		}
		if err != nil {
			return tallies, eris.Wrapf(err, "stage %s", step.Name)
		}
	}
	return tallies, nil
}

// buildPipeline wires providers, gateways, cache, limiter and metrics
func buildPipeline(cfg model.Config, withVision bool, logger *zap.Logger, rec *metrics.Recorder) (*pipeline.Pipeline, error) {
	store := cache.FromConfig(cfg.Cache)
	limiter := worker.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	for name, rps := range cfg.RateLimit.PerModel {
		limiter.SetRate(name, rps, cfg.RateLimit.Burst)
	}

	text, err := newGateway("llm", cfg.LLM, cfg.Retry, store, limiter, logger, rec)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(rec),
	}
	if withVision {
		vision, err := newGateway("vision", cfg.Vision, cfg.Retry, store, limiter, logger, rec)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithVision(vision))
	}
	return pipeline.NewPipeline(cfg, text, opts...), nil
}

func newGateway(section string, c model.LLMConfig, retry model.RetryConfig, store cache.Cache, limiter *worker.Limiter, logger *zap.Logger, rec *metrics.Recorder) (*llm.Gateway, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(c))
	if err != nil {
		return nil, eris.Wrapf(err, "%s provider", section)
	}
	if c.APIKey == "" && c.Provider != "ollama" {
		fmt.Fprintf(os.Stderr, "⚠️  Warning: no API key configured for %s provider %q\n", section, c.Provider)
	}

	opts := []llm.GatewayOption{
		llm.WithLimiter(limiter),
		llm.WithMetrics(rec),
		llm.WithLogger(logger.With(zap.String("oracle", section))),
	}
	if store != nil {
		opts = append(opts, llm.WithCache(store))
	}
	return llm.NewGateway(provider, llm.GatewayConfig{
		MaxRetries: retry.MaxRetries,
		Backoff:    retry.Backoff,
		Timeout:    c.Timeout,
	}, opts...), nil
}

func printHeader(cfg model.Config, names []string) {
	stages := "all"
	if len(names) > 0 {
		stages = fmt.Sprint(names)
	}
	end := fmt.Sprint(cfg.Range.End)
	if cfg.Range.End <= 0 {
		end = "end"
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  hopqa curation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Stages:       %s\n", stages)
	fmt.Fprintf(os.Stderr, "  Captions:     %s\n", cfg.Paths.CaptionDir)
	fmt.Fprintf(os.Stderr, "  Results:      %s\n", cfg.Paths.ResultsDir)
	fmt.Fprintf(os.Stderr, "  Range:        [%d, %s)\n", cfg.Range.Start, end)
	fmt.Fprintf(os.Stderr, "  Workers:      %d (video %d)\n", cfg.Concurrency.Workers, cfg.Concurrency.VideoWorkers)
	fmt.Fprintf(os.Stderr, "\n")
}

func printSummary(tallies []*report.Tally, elapsed time.Duration) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Summary\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	for _, t := range tallies {
		total, passed, failed := t.Items()
		mark := "✓"
		if len(t.FailedUnits()) > 0 {
			mark = "✗"
		}
		fmt.Fprintf(os.Stderr, "  %s %-20s %5d in  %5d kept  %5d dropped  (%.1f%%)\n",
			mark, t.Stage, total, passed, failed, t.Retention())
		if f := t.FailedUnits(); len(f) > 0 {
			fmt.Fprintf(os.Stderr, "      failed units: %v\n", f)
		}
	}
	fmt.Fprintf(os.Stderr, "\n  Duration:     %v\n\n", elapsed.Round(time.Millisecond))
}
