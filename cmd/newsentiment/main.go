// newsentiment collects company news per business day, scores every
// headline and writes per-day and per-company sentiment reports.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/seenimoa/newsentiment/internal/app"
	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/logging"
	"github.com/seenimoa/newsentiment/internal/schedule"
	"github.com/seenimoa/newsentiment/internal/workitem"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set by PersistentPreRunE.
var (
	cfg    *config.Config
	logger *log.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newsentiment",
	Short: "Daily news sentiment for a roster of companies",
	Long: `newsentiment fetches the news published about each company on each
business day of a date range, scores every article with a local LLM and
writes per-day and per-company sentiment reports.

Runs are resumable: completed company-days are checkpointed in the run
directory and skipped when the same range is run again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(watchCmd)
}

// addRangeFlags registers the date range and roster selection flags.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "first date, YYYY-MM-DD (default: previous business day in New York)")
	cmd.Flags().String("end", "", "last date, YYYY-MM-DD (default: --start)")
	cmd.Flags().String("symbols", "", "comma-separated symbols to analyze (default: whole roster)")
	cmd.Flags().Int("top", 0, "analyze only the first n companies of the roster")
}

func rangeFlags(cmd *cobra.Command, a *app.App) (workitem.Range, app.Selection, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	symbols, _ := cmd.Flags().GetString("symbols")
	top, _ := cmd.Flags().GetInt("top")

	if start == "" {
		start = utils.FormatDate(a.Calendar().PrevBusinessDay(utils.TodayNewYork()))
	}
	if end == "" {
		end = start
	}
	rng, err := workitem.ParseRange(start, end)
	if err != nil {
		return workitem.Range{}, app.Selection{}, err
	}
	return rng, app.Selection{Symbols: utils.ParseSymbols(symbols), Top: top}, nil
}

func newApp() (*app.App, error) {
	return app.New(cfg, logger, app.WithVersion(version))
}

// signalContext is cancelled by the first SIGINT/SIGTERM so the run can
// checkpoint in-flight items. A second signal exits immediately.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Warn().Msg("interrupt received, finishing in-flight items (signal again to quit now)")
		cancel()
		<-sigCh
		logger.Error().Msg("second interrupt, exiting")
		os.Exit(130)
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newsentiment %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect and score news for a date range",
	Long: `Collect and score news for every business day in [--start, --end] and
every selected company, then write the CSV reports, the statistics JSON and
the charts into <output.dir>/<start>_to_<end>/.

Examples:
  newsentiment run --start 2024-06-01 --end 2024-06-30
  newsentiment run --start 2024-06-03 --symbols AAPL,MSFT
  newsentiment run --start 2024-06-03 --end 2024-06-07 --top 10 --status-addr :8090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		rng, sel, err := rangeFlags(cmd, a)
		if err != nil {
			return err
		}
		statusAddr, _ := cmd.Flags().GetString("status-addr")

		ctx, stop := signalContext()
		defer stop()

		res, err := a.Run(ctx, app.RunOptions{Range: rng, Selection: sel, StatusAddr: statusAddr})
		if res != nil && res.Run != nil {
			printRun(res)
		}
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	addRangeFlags(runCmd)
	runCmd.Flags().String("status-addr", "", "serve live progress on this address while running (overrides status.addr)")
}

func printRun(res *app.Result) {
	r := res.Run
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("  Run %s\n", strings.ToUpper(string(r.Status)))
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("  Directory:     %s\n", res.Dir)
	fmt.Printf("  Items:         %d (resumed %d, processed %d)\n", r.Total, r.Skipped, r.Done)
	fmt.Printf("  Scored:        %d\n", r.Scored)
	fmt.Printf("  No news:       %d\n", r.NoNews)
	fmt.Printf("  Partial:       %d\n", r.PartiallyScored)
	fmt.Printf("  Fetch failed:  %d\n", r.FetchFailed)
	fmt.Printf("  Pending:       %d\n", len(r.Pending))
	if r.QuotaHit {
		fmt.Println("  News quota exhausted; rerun the same range later to resume.")
	}
	if r.Cancelled {
		fmt.Println("  Interrupted; rerun the same range to resume.")
	}
	if res.Report != nil {
		st := res.Report.Stats
		fmt.Printf("  News articles: %d\n", st.TotalNews)
		fmt.Printf("  Positive:      %s\n", utils.FormatPct(st.PositiveRatio))
		fmt.Printf("  Negative:      %s\n", utils.FormatPct(st.NegativeRatio))
		fmt.Printf("  Neutral:       %s\n", utils.FormatPct(st.NeutralRatio))
	}
	for _, f := range res.Files {
		fmt.Printf("  → %s\n", f)
	}
	fmt.Println("═══════════════════════════════════════")
}

// --- Report Command ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rebuild reports from an existing checkpoint",
	Long:  "Regenerate the CSV files, statistics and charts of a run directory from its checkpoint, without any network calls.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		rng, sel, err := rangeFlags(cmd, a)
		if err != nil {
			return err
		}
		res, err := a.Rebuild(rng, sel)
		if err != nil {
			return err
		}
		fmt.Printf("Rebuilt %d company-days in %s\n", len(res.Report.Days), res.Dir)
		for _, f := range res.Files {
			fmt.Printf("  → %s\n", f)
		}
		if n := len(res.Report.Pending); n > 0 {
			fmt.Printf("  %d items still pending\n", n)
		}
		return nil
	},
}

func init() {
	addRangeFlags(reportCmd)
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and checkpoint progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  newsentiment status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    News:          %s\n", cfg.News.Provider)
		fmt.Printf("    Scorer:        %s (model: %s)\n", cfg.Scorer.Provider, cfg.Scorer.Model)
		fmt.Printf("    Ollama:        %s\n", cfg.Scorer.OllamaURL)
		fmt.Printf("    Calendar:      %s\n", a.Calendar().Preset())
		fmt.Printf("    Roster:        %d companies\n", a.Roster().Len())
		fmt.Printf("    Output:        %s\n", cfg.Output.Dir)
		fmt.Println()

		fmt.Println("  Secrets:")
		for _, s := range config.CheckSecrets(cfg) {
			state := "❌ not set"
			if s.IsSet {
				state = fmt.Sprintf("✅ set (%s: %s)", s.Source, s.Masked)
			}
			fmt.Printf("    %-25s %s\n", s.Name+":", state)
		}

		start, _ := cmd.Flags().GetString("start")
		if start != "" {
			rng, sel, err := rangeFlags(cmd, a)
			if err != nil {
				return err
			}
			p, err := a.Status(rng, sel)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Printf("  Checkpoint:    %s\n", p.Dir)
			fmt.Printf("    Done:          %d / %d\n", p.Done, p.Total)
			for _, o := range sortedOutcomes(p.Outcomes) {
				fmt.Printf("    %-16s %d\n", string(o)+":", p.Outcomes[o])
			}
			fmt.Printf("    Runs:          %d\n", len(p.Runs))
			for i, it := range p.Pending {
				if i == 10 {
					fmt.Printf("    … %d more pending\n", len(p.Pending)-i)
					break
				}
				fmt.Printf("    pending %s\n", it.Key())
			}
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func init() {
	addRangeFlags(statusCmd)
}

func sortedOutcomes(m map[models.Outcome]int) []models.Outcome {
	out := make([]models.Outcome, 0, len(m))
	for o := range m {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// --- Ping Command ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the news source and scorer are reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		src, err := a.Source(logger)
		if err != nil {
			return err
		}
		scorer, err := a.Scorer(logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		failed := false
		check := func(name string, ping func(context.Context) error) {
			start := time.Now()
			if err := ping(ctx); err != nil {
				failed = true
				fmt.Printf("  ❌ %-28s %v\n", name, err)
				return
			}
			fmt.Printf("  ✅ %-28s %s\n", name, time.Since(start).Round(time.Millisecond))
		}
		check("news "+src.Name(), src.Ping)
		check("scorer "+scorer.Name(), scorer.Ping)
		if failed {
			return fmt.Errorf("connectivity check failed")
		}
		return nil
	},
}

// --- Score Command ---

var scoreCmd = &cobra.Command{
	Use:   "score [text]",
	Short: "Score one piece of text",
	Long: `Score one piece of text with the configured scorer and print the score
and its label.

Examples:
  newsentiment score "Apple shares surge on record iPhone sales"
  echo "Tesla recalls 2 million vehicles" | newsentiment score`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if text == "" {
			data, err := readStdin()
			if err != nil {
				return err
			}
			text = data
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("provide text as arguments or on stdin")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		scorer, err := a.Scorer(logger)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ScorerTimeout())
		defer cancel()

		start := time.Now()
		score, err := scorer.Score(ctx, text)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  (%s, %s)\n", utils.FormatScore(score), models.LabelFor(score), scorer.Name(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func readStdin() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// --- Watch Command ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the pipeline every business day on a cron schedule",
	Long: `Run the pipeline for the current date on every tick of watch.cron,
evaluated in watch.timezone. Ticks on weekends and calendar holidays are
skipped, and a tick is skipped while the previous run is still going.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		symbols, _ := cmd.Flags().GetString("symbols")
		top, _ := cmd.Flags().GetInt("top")
		sel := app.Selection{Symbols: utils.ParseSymbols(symbols), Top: top}

		job := func(ctx context.Context, day time.Time) error {
			res, err := a.Run(ctx, app.RunOptions{Range: workitem.Range{Start: day, End: day}, Selection: sel})
			if res != nil && res.Run != nil {
				logger.Info().
					Str("dir", res.Dir).
					Str("status", string(res.Run.Status)).
					Int("done", res.Run.Done).
					Int("pending", len(res.Run.Pending)).
					Msg("daily run finished")
			}
			return err
		}

		w, err := schedule.New(cfg.Watch.Cron, cfg.Watch.Timezone, a.Calendar(), job, schedule.WithLogger(logger))
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		return w.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().String("symbols", "", "comma-separated symbols to analyze (default: whole roster)")
	watchCmd.Flags().Int("top", 0, "analyze only the first n companies of the roster")
}
