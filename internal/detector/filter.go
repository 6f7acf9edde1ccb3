package detector

import (
	"fmt"
	"strings"

	"golang.org/x/exp/trace"
)

// extractStack formats a trace.Stack one frame per line and returns the
// first user-code frame as function and file:line.
func extractStack(s trace.Stack) (stack, function, location string) {
	var sb strings.Builder
	for f := range s.Frames() {
		fmt.Fprintf(&sb, "      %s (%s:%d)\n", f.Func, f.File, f.Line)
		if location == "" && !isRuntimeFrame(f.Func, f.File) {
			function = f.Func
			location = fmt.Sprintf("%s:%d", f.File, f.Line)
		}
	}
	return sb.String(), function, location
}

// isRuntimeGoroutine returns true if every frame of a formatted stack belongs
// to the runtime, runtime/trace, or the testing framework.
func isRuntimeGoroutine(stack string) bool {
	if stack == "" {
		return true
	}
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		funcName, _, _ := strings.Cut(line, " ")
		if !isRuntimeFrame(funcName, line) {
			return false
		}
	}
	return true
}

func isRuntimeFrame(funcName, line string) bool {
	return strings.HasPrefix(funcName, "runtime.") ||
		strings.HasPrefix(funcName, "runtime/") ||
		strings.Contains(line, "/src/runtime/") ||
		strings.HasPrefix(funcName, "testing.") ||
		strings.Contains(line, "_testmain.go")
}
