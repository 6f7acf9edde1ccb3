package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/Heman10x-NGU/dangleref/internal/detector"
	"github.com/Heman10x-NGU/dangleref/internal/driver"
	"github.com/Heman10x-NGU/dangleref/internal/tracer"
	"github.com/Heman10x-NGU/dangleref/internal/triple"
	"github.com/spf13/cobra"
)

var flagKeep bool

// tracedRun is the traced workload; tests swap it out.
var tracedRun = driver.Run

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Run the specimen under runtime/trace and verify it runs sequentially",
	Long: `Trace runs the specimen once per GOMAXPROCS setting (1, 2, 4) with an
execution trace enabled, then checks each trace: the produce region must come
before the consume region, both on one goroutine, with no overlap and no
goroutines spawned inside them.`,
	Example: `  dangleref trace
  dangleref trace --strategy buffer --format json
  dangleref trace --keep`,
	Args: cobra.NoArgs,
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().BoolVar(&flagKeep, "keep", false, "Keep the trace file of the last run for 'dangleref analyze'")
}

func runTrace(cmd *cobra.Command, _ []string) error {
	strategy, err := triple.ParseStrategy(flagStrategy)
	if err != nil {
		return fmt.Errorf("--strategy: %w", err)
	}
	errOut := cmd.ErrOrStderr()

	result, output, lastRun, err := traceRuns(cmd.Context(), strategy)
	if err != nil {
		return err
	}
	if flagKeep {
		fmt.Fprintf(errOut, "Trace kept: %s\n", lastRun)
	} else {
		defer os.Remove(lastRun)
	}

	fmt.Fprintln(errOut, "--- specimen output ---")
	fmt.Fprint(errOut, output)
	fmt.Fprintln(errOut, "--- end output ---")

	if err := report(cmd, result); err != nil {
		return err
	}
	if len(result.Findings) > 0 {
		return fmt.Errorf("%w: %s", ErrNotSequential, pluralFindings(len(result.Findings)))
	}
	return nil
}

// traceRuns runs the specimen under a trace once per schedule-diversity value
// and merges the analyses. It returns the specimen output and the trace file
// of the last run; on error no trace file is left behind.
func traceRuns(ctx context.Context, strategy triple.Strategy) (result *detector.Result, output string, lastRun string, err error) {
	defer func() {
		if err != nil && lastRun != "" {
			os.Remove(lastRun)
			lastRun = ""
		}
	}()

	prev := runtime.GOMAXPROCS(0)
	defer runtime.GOMAXPROCS(prev)

	var buf bytes.Buffer
	// Schedule diversity: the specimen must stay sequential however many Ps
	// the scheduler has to play with.
	for _, gmp := range scheduleDiversityValues() {
		runtime.GOMAXPROCS(gmp)
		buf.Reset()

		run, err := tracer.Capture(ctx, func(ctx context.Context) error {
			return tracedRun(ctx, &buf, strategy)
		})
		if err != nil {
			return nil, "", lastRun, fmt.Errorf("trace: %w", err)
		}
		if run.Err != nil {
			os.Remove(run.TraceFile)
			return nil, "", lastRun, fmt.Errorf("specimen (GOMAXPROCS=%d): %w", gmp, run.Err)
		}

		res, err := detector.Analyze(run.TraceFile, traceOptions())
		if err != nil {
			os.Remove(run.TraceFile)
			return nil, "", lastRun, fmt.Errorf("analyze: %w", err)
		}

		if lastRun != "" {
			os.Remove(lastRun)
		}
		lastRun = run.TraceFile
		result = merge(result, res)
	}
	return result, buf.String(), lastRun, nil
}

// merge folds the analysis of one traced run into the running total. The
// trace file and window of the latest run win.
func merge(total, res *detector.Result) *detector.Result {
	if total == nil {
		return res
	}
	total.TraceFile = res.TraceFile
	total.DurationMs = res.DurationMs
	total.GoroutinesAnalyzed = max(total.GoroutinesAnalyzed, res.GoroutinesAnalyzed)
	total.TasksAnalyzed += res.TasksAnalyzed
	total.RegionsAnalyzed += res.RegionsAnalyzed
	total.Notes = append(total.Notes, res.Notes...)
	total.Findings = append(total.Findings, res.Findings...)
	return total
}

// scheduleDiversityValues returns the GOMAXPROCS values to run the specimen
// under. Values larger than runtime.NumCPU() are skipped.
func scheduleDiversityValues() []int {
	numCPU := runtime.NumCPU()
	candidates := []int{1, 2, 4}
	var result []int
	for _, v := range candidates {
		if v <= numCPU || v == 1 {
			result = append(result, v)
		}
	}
	return result
}
