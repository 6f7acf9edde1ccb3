package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Heman10x-NGU/dangleref/internal/driver"
	"github.com/Heman10x-NGU/dangleref/internal/triple"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// execute runs the root command with args and fresh flag values.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	flagFormat = "terminal"
	flagOutput = ""
	flagNoLLM = true
	flagDebugFiltered = false
	flagStrategy = string(triple.StrategyHeap)
	flagKeep = false

	if args == nil {
		args = []string{} // nil makes cobra fall back to os.Args
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRoot_PrintsSpecimen(t *testing.T) {
	stdout, stderr, err := execute(t)
	require.NoError(t, err)
	require.Equal(t, "1 2 3 \n", stdout)
	require.Empty(t, stderr)
}

func TestRoot_IgnoresArguments(t *testing.T) {
	for _, args := range [][]string{
		{"spurious"},
		{"--bogus"},
		{"one", "two", "--bogus=3"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			stdout, stderr, err := execute(t, args...)
			require.NoError(t, err)
			require.Equal(t, "1 2 3 \n", stdout)
			require.Empty(t, stderr)
		})
	}
}

func TestRoot_Deterministic(t *testing.T) {
	first, _, err := execute(t)
	require.NoError(t, err)
	second, _, err := execute(t)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRoot_Strategies(t *testing.T) {
	for _, st := range triple.Strategies {
		t.Run(string(st), func(t *testing.T) {
			stdout, _, err := execute(t, "--strategy", string(st))
			require.NoError(t, err)
			require.Equal(t, "1 2 3 \n", stdout)
		})
	}
}

func TestRoot_UnknownStrategy(t *testing.T) {
	stdout, _, err := execute(t, "--strategy", "stack")
	require.ErrorIs(t, err, triple.ErrUnknownStrategy)
	require.Empty(t, stdout)
}

func TestVet_Dangling(t *testing.T) {
	stdout, _, err := execute(t, "vet", "../internal/static/testdata/dangling")
	require.ErrorIs(t, err, ErrOwnershipViolation)
	require.Contains(t, stdout, "10 scope escapes")
	require.Contains(t, stdout, "● SCOPE ESCAPE")
	require.Contains(t, stdout, "dangling.getArray")
	require.Contains(t, err.Error(), "10 findings")
}

func TestVet_Safe(t *testing.T) {
	stdout, _, err := execute(t, "vet", "../internal/static/testdata/safe")
	require.NoError(t, err)
	require.Contains(t, stdout, "No local storage outlives its scope.")
}

func TestVet_JSON(t *testing.T) {
	stdout, _, err := execute(t, "vet", "--format", "json", "../internal/static/testdata/dangling")
	require.ErrorIs(t, err, ErrOwnershipViolation)

	var rep struct {
		Findings []struct {
			Kind    string `json:"kind"`
			Subject string `json:"subject"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	require.Len(t, rep.Findings, 10)
	for _, f := range rep.Findings {
		require.Equal(t, "scope_escape", f.Kind)
	}
}

func TestVet_RequiresPackages(t *testing.T) {
	_, _, err := execute(t, "vet")
	require.Error(t, err)
}

func TestTrace_Sequential(t *testing.T) {
	stdout, stderr, err := execute(t, "trace", "--format", "json")
	require.NoError(t, err)
	require.Contains(t, stderr, "--- specimen output ---\n1 2 3 \n--- end output ---\n")

	var rep struct {
		TasksAnalyzed   int   `json:"tasks_analyzed"`
		RegionsAnalyzed int   `json:"regions_analyzed"`
		Findings        []any `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
	runs := len(scheduleDiversityValues())
	require.Equal(t, runs, rep.TasksAnalyzed)
	require.Equal(t, 2*runs, rep.RegionsAnalyzed)
	require.Empty(t, rep.Findings)
}

func TestTrace_KeepThenAnalyze(t *testing.T) {
	_, stderr, err := execute(t, "trace", "--keep", "--strategy", "buffer")
	require.NoError(t, err)

	_, rest, ok := strings.Cut(stderr, "Trace kept: ")
	require.True(t, ok, stderr)
	path, _, _ := strings.Cut(rest, "\n")
	defer os.Remove(path)

	stdout, _, err := execute(t, "analyze", path)
	require.NoError(t, err)
	require.Contains(t, stdout, "Producer and consumer ran sequentially on one goroutine.")
	require.Contains(t, stdout, "log strategy: buffer len=3")
}

func TestAnalyze_OutputFile(t *testing.T) {
	_, stderr, err := execute(t, "trace", "--keep")
	require.NoError(t, err)
	_, rest, _ := strings.Cut(stderr, "Trace kept: ")
	path, _, _ := strings.Cut(rest, "\n")
	defer os.Remove(path)

	outFile := t.TempDir() + "/findings.json"
	stdout, _, err := execute(t, "analyze", path, "--format", "json", "--output", outFile)
	require.NoError(t, err)
	require.Empty(t, stdout)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.Contains(t, string(data), `"findings": []`)
}

type closeFailer struct{ bytes.Buffer }

func (*closeFailer) Close() error { return errors.New("quota exceeded") }

func TestAnalyze_OutputCloseError(t *testing.T) {
	_, stderr, err := execute(t, "trace", "--keep")
	require.NoError(t, err)
	_, rest, _ := strings.Cut(stderr, "Trace kept: ")
	path, _, _ := strings.Cut(rest, "\n")
	defer os.Remove(path)

	sink := &closeFailer{}
	orig := openOutput
	openOutput = func(string) (io.WriteCloser, error) { return sink, nil }
	t.Cleanup(func() { openOutput = orig })

	_, _, err = execute(t, "analyze", path, "--format", "json", "--output", "findings.json")
	require.ErrorContains(t, err, "close output file: quota exceeded")
	require.Contains(t, sink.String(), `"findings": []`)
}

func TestTrace_FailedRunLeavesNoTraceFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	// Fail on the last pass so every earlier pass has left a trace behind.
	runs := len(scheduleDiversityValues())
	calls := 0
	tracedRun = func(ctx context.Context, w io.Writer, st triple.Strategy) error {
		calls++
		if calls == runs {
			return errors.New("consumer crashed")
		}
		return driver.Run(ctx, w, st)
	}
	t.Cleanup(func() { tracedRun = driver.Run })

	_, _, err := execute(t, "trace", "--keep")
	require.ErrorContains(t, err, "consumer crashed")
	require.Equal(t, runs, calls)

	left, err := filepath.Glob(filepath.Join(dir, "dangleref-*.out"))
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestScheduleDiversityValues(t *testing.T) {
	vals := scheduleDiversityValues()
	require.NotEmpty(t, vals)
	require.Equal(t, 1, vals[0])
}
