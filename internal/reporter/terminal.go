package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/Heman10x-NGU/dangleref/internal/detector"
	"github.com/fatih/color"
)

var (
	bold      = color.New(color.Bold)
	red       = color.New(color.FgRed, color.Bold)
	yellow    = color.New(color.FgYellow, color.Bold)
	cyan      = color.New(color.FgCyan)
	green     = color.New(color.FgGreen)
	dim       = color.New(color.Faint)
	separator = strings.Repeat("━", 40)
)

var headers = map[detector.Kind]string{
	detector.KindScopeEscape:    "SCOPE ESCAPE",
	detector.KindMissingRegion:  "MISSING REGION",
	detector.KindRegionOrder:    "REGION ORDER",
	detector.KindRegionOverlap:  "REGION OVERLAP",
	detector.KindCrossGoroutine: "CROSS GOROUTINE",
	detector.KindStrayGoroutine: "STRAY GOROUTINE",
}

// WriteTerminal writes a human-readable colored report to w.
func WriteTerminal(w io.Writer, result *detector.Result, explanation string) {
	escapes := countKind(result.Findings, detector.KindScopeEscape)
	strays := countKind(result.Findings, detector.KindStrayGoroutine)
	sequencing := len(result.Findings) - escapes - strays

	bold.Fprintln(w, "\ndangleref Analysis")
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w)

	if result.TraceFile == "" {
		summaryLine(w, red, escapes, "scope escape")
	} else {
		summaryLine(w, red, sequencing, "sequencing issue")
		summaryLine(w, yellow, strays, "stray goroutine")
	}

	if len(result.Findings) == 0 {
		fmt.Fprintln(w)
		if result.TraceFile == "" {
			green.Fprintln(w, "  No local storage outlives its scope.")
		} else {
			green.Fprintln(w, "  Producer and consumer ran sequentially on one goroutine.")
		}
	}

	for _, f := range result.Findings {
		fmt.Fprintln(w)
		printFinding(w, f)
	}

	if len(result.Notes) > 0 {
		fmt.Fprintln(w)
		for _, n := range result.Notes {
			dim.Fprintf(w, "  log %s\n", n)
		}
	}

	if explanation != "" {
		fmt.Fprintln(w)
		bold.Fprintln(w, "  Claude's Analysis")
		fmt.Fprintln(w)
		for _, line := range strings.Split(strings.TrimSpace(explanation), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
	if result.TraceFile == "" {
		dim.Fprintf(w, "  Static analysis · %s\n", pluralize(len(result.Findings), "finding"))
	} else {
		dim.Fprintf(w, "  Analyzed %s · %s · %d goroutines · %dms window · %s\n",
			pluralize(result.TasksAnalyzed, "run"), pluralize(result.RegionsAnalyzed, "region"),
			result.GoroutinesAnalyzed, result.DurationMs, result.TraceFile)
	}
	fmt.Fprintln(w)
}

func summaryLine(w io.Writer, bad *color.Color, n int, noun string) {
	if n > 0 {
		bad.Fprintf(w, "  %s\n", pluralize(n, noun))
	} else {
		green.Fprintf(w, "  %s\n", pluralize(n, noun))
	}
}

func printFinding(w io.Writer, f detector.Finding) {
	header, ok := headers[f.Kind]
	if !ok {
		header = strings.ToUpper(string(f.Kind))
	}
	if f.Confidence == detector.ConfidenceHigh {
		red.Fprintf(w, "● %s", header)
	} else {
		yellow.Fprintf(w, "● %s", header)
	}
	dim.Fprintf(w, "  (%s confidence)\n", f.Confidence)

	if f.Subject != "" {
		fmt.Fprintf(w, "  Subject: ")
		cyan.Fprintf(w, "%s\n", f.Subject)
	}
	if label := detector.GoroutineLabel(f.GoroutineID); label != "-" {
		fmt.Fprintf(w, "  Goroutine: ")
		cyan.Fprintf(w, "%s\n", label)
	}
	fmt.Fprintf(w, "  %s\n", f.Detail)

	if f.Function != "" {
		fmt.Fprintf(w, "  Function: ")
		cyan.Fprintf(w, "%s\n", f.Function)
	}
	if f.Location != "" {
		fmt.Fprintf(w, "  Location: ")
		cyan.Fprintf(w, "%s\n", f.Location)
	}

	if f.Stack != "" {
		fmt.Fprintln(w, "  Stack:")
		for _, line := range strings.Split(strings.TrimRight(f.Stack, "\n"), "\n") {
			dim.Fprintf(w, "  %s\n", line)
		}
	}
}

func countKind(findings []detector.Finding, kind detector.Kind) int {
	n := 0
	for _, f := range findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
