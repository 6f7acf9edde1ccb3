package reporter

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Heman10x-NGU/dangleref/internal/detector"
)

type jsonFinding struct {
	Kind        string `json:"kind"`
	Confidence  string `json:"confidence"`
	GoroutineID int64  `json:"goroutine_id,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Detail      string `json:"detail"`
	Function    string `json:"function,omitempty"`
	Location    string `json:"location,omitempty"`
	Stack       string `json:"stack,omitempty"`
}

type jsonReport struct {
	TraceFile          string        `json:"trace_file,omitempty"`
	DurationMs         int64         `json:"duration_ms"`
	GoroutinesAnalyzed int           `json:"goroutines_analyzed"`
	TasksAnalyzed      int           `json:"tasks_analyzed"`
	RegionsAnalyzed    int           `json:"regions_analyzed"`
	Notes              []string      `json:"notes,omitempty"`
	Findings           []jsonFinding `json:"findings"`
	LLMExplanation     string        `json:"llm_explanation,omitempty"`
}

// WriteJSON writes findings as JSON to the given writer.
func WriteJSON(w io.Writer, result *detector.Result, explanation string) error {
	report := jsonReport{
		TraceFile:          result.TraceFile,
		DurationMs:         result.DurationMs,
		GoroutinesAnalyzed: result.GoroutinesAnalyzed,
		TasksAnalyzed:      result.TasksAnalyzed,
		RegionsAnalyzed:    result.RegionsAnalyzed,
		Notes:              result.Notes,
		Findings:           make([]jsonFinding, 0, len(result.Findings)),
		LLMExplanation:     explanation,
	}

	for _, f := range result.Findings {
		jf := jsonFinding{
			Kind:       string(f.Kind),
			Confidence: string(f.Confidence),
			Subject:    f.Subject,
			Detail:     f.Detail,
			Function:   f.Function,
			Location:   f.Location,
			Stack:      f.Stack,
		}
		if detector.GoroutineLabel(f.GoroutineID) != "-" {
			jf.GoroutineID = int64(f.GoroutineID)
		}
		report.Findings = append(report.Findings, jf)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
