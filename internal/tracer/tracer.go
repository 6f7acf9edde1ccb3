// Package tracer runs a function under runtime/trace and keeps the trace on
// disk for later analysis.
package tracer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/trace"
	"time"
)

// RunResult holds the outcome of a traced run.
type RunResult struct {
	TraceFile string
	Elapsed   time.Duration
	Err       error // error returned by the traced function
}

// Capture starts an execution trace in a fresh temporary file, calls fn, and
// stops the trace. The caller owns TraceFile and should remove it when done.
//
// Capture fails if tracing is already enabled in this process (for example
// under `go test -trace`).
func Capture(ctx context.Context, fn func(context.Context) error) (*RunResult, error) {
	traceFile, err := tempTraceFile()
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	f, err := os.Create(traceFile)
	if err != nil {
		os.Remove(traceFile)
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	if err := trace.Start(f); err != nil {
		f.Close()
		os.Remove(traceFile)
		return nil, fmt.Errorf("start trace: %w", err)
	}

	start := time.Now()
	runErr := fn(ctx)
	elapsed := time.Since(start)

	trace.Stop()
	if err := f.Close(); err != nil {
		os.Remove(traceFile)
		return nil, fmt.Errorf("close trace file: %w", err)
	}

	return &RunResult{
		TraceFile: traceFile,
		Elapsed:   elapsed,
		Err:       runErr,
	}, nil
}

func tempTraceFile() (string, error) {
	dir := os.TempDir()
	f, err := os.CreateTemp(dir, "dangleref-*.out")
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return filepath.Clean(name), nil
}
