package cmd

import (
	"fmt"

	"github.com/Heman10x-NGU/dangleref/internal/driver"
	"github.com/Heman10x-NGU/dangleref/internal/triple"
	"github.com/spf13/cobra"
)

var (
	flagFormat        string
	flagOutput        string
	flagNoLLM         bool
	flagDebugFiltered bool
	flagStrategy      string
)

var rootCmd = &cobra.Command{
	Use:   "dangleref",
	Short: "Return a reference to a producer's local array and print through it",
	Long: `dangleref builds {1, 2, 3} in a local array, returns a reference to it,
and prints the three elements through that reference.

In C the reference would dangle once the producer returns. Go's escape
analysis moves the array to the heap, so the program prints "1 2 3 " and
exits 0. Arguments are ignored.

  dangleref vet <packages...>   report locals that outlive their function
  dangleref trace               verify the specimen runs sequentially`,
	Args:               cobra.ArbitraryArgs,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               runSpecimen,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStrategy, "strategy", string(triple.StrategyHeap), "How the producer hands over the sequence: heap, value, or buffer")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "terminal", "Report format for vet/trace/analyze: terminal or json")
	rootCmd.PersistentFlags().StringVar(&flagOutput, "output", "", "Write reports to file instead of stdout")
	rootCmd.PersistentFlags().BoolVar(&flagNoLLM, "no-llm", false, "Skip LLM explanation (faster, works without API key)")
	rootCmd.PersistentFlags().BoolVar(&flagDebugFiltered, "debug-filtered", false, "Print every traced region and goroutine creation to stderr (diagnostic)")
}

func runSpecimen(cmd *cobra.Command, _ []string) error {
	strategy, err := triple.ParseStrategy(flagStrategy)
	if err != nil {
		return fmt.Errorf("--strategy: %w", err)
	}
	return driver.Run(cmd.Context(), cmd.OutOrStdout(), strategy)
}
