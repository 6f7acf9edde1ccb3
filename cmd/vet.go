package cmd

import (
	"fmt"

	"github.com/Heman10x-NGU/dangleref/internal/detector"
	"github.com/Heman10x-NGU/dangleref/internal/static"
	"github.com/spf13/cobra"
)

var vetCmd = &cobra.Command{
	Use:   "vet <packages...>",
	Short: "Report functions whose local storage outlives them",
	Long: `Vet loads the given packages with go/ssa and reports every function that
returns the address of a local, returns a slice over a local array, returns a
closure capturing a local, or stores a local's address in a package variable.

Each of these is a dangling reference in C. Go compiles them by moving the
local to the heap; vet makes the ownership transfer visible and exits 1.`,
	Example: `  dangleref vet ./...
  dangleref vet ./internal/static/testdata/dangling --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVet,
}

func init() {
	rootCmd.AddCommand(vetCmd)
}

func runVet(cmd *cobra.Command, args []string) error {
	escapes, err := static.AnalyzeScopeEscapes("", args)
	if err != nil {
		return fmt.Errorf("vet: %w", err)
	}

	result := &detector.Result{}
	for _, e := range escapes {
		result.Findings = append(result.Findings, detector.Finding{
			Kind:       detector.KindScopeEscape,
			Confidence: detector.ConfidenceHigh,
			Subject:    e.Variable,
			Detail:     e.Message,
			Function:   e.Function,
			Location:   e.Location,
		})
	}

	if err := report(cmd, result); err != nil {
		return err
	}
	if len(result.Findings) > 0 {
		return fmt.Errorf("%w: %s", ErrOwnershipViolation, pluralFindings(len(result.Findings)))
	}
	return nil
}
