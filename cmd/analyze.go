package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Heman10x-NGU/dangleref/internal/detector"
	"github.com/Heman10x-NGU/dangleref/internal/driver"
	"github.com/Heman10x-NGU/dangleref/internal/llm"
	"github.com/Heman10x-NGU/dangleref/internal/reporter"
	"github.com/spf13/cobra"
)

var (
	// ErrOwnershipViolation is returned by vet when a function's local storage
	// outlives the function.
	ErrOwnershipViolation = errors.New("ownership violation")

	// ErrNotSequential is returned by trace and analyze when the specimen did
	// not run producer then consumer on a single goroutine.
	ErrNotSequential = errors.New("specimen did not run sequentially")
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <trace.out>",
	Short: "Analyze a trace kept by 'dangleref trace --keep'",
	Example: `  dangleref analyze ./trace.out
  dangleref analyze ./trace.out --format json --output findings.json
  dangleref analyze ./trace.out --debug-filtered`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	result, err := detector.Analyze(args[0], traceOptions())
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if err := report(cmd, result); err != nil {
		return err
	}
	if len(result.Findings) > 0 {
		return fmt.Errorf("%w: %s", ErrNotSequential, pluralFindings(len(result.Findings)))
	}
	return nil
}

func traceOptions() detector.Options {
	return detector.Options{
		Task:          driver.TaskSpecimen,
		Regions:       driver.Regions,
		DebugFiltered: flagDebugFiltered,
	}
}

// report explains the findings if possible and writes them in the chosen
// format.
func report(cmd *cobra.Command, result *detector.Result) (err error) {
	explanation := explain(cmd.Context(), cmd.ErrOrStderr(), result.Findings)

	out, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeOut(); cerr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", cerr)
		}
	}()

	switch flagFormat {
	case "json":
		return reporter.WriteJSON(out, result, explanation)
	default:
		reporter.WriteTerminal(out, result, explanation)
		return nil
	}
}

func explain(ctx context.Context, errOut io.Writer, findings []detector.Finding) string {
	if flagNoLLM || len(findings) == 0 {
		return ""
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return ""
	}
	exp, err := llm.Explain(ctx, findings, apiKey)
	if err != nil {
		fmt.Fprintf(errOut, "warn: LLM explanation failed: %v\n", err)
		return ""
	}
	return exp
}

// outputWriter returns a writer for the output destination (file or stdout)
// and the function that closes it.
func outputWriter(cmd *cobra.Command) (io.Writer, func() error, error) {
	if flagOutput == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := openOutput(flagOutput)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

// openOutput creates the --output file; tests swap it out.
var openOutput = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func pluralFindings(n int) string {
	if n == 1 {
		return "1 finding"
	}
	return fmt.Sprintf("%d findings", n)
}
