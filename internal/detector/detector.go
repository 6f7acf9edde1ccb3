// Package detector reads a Go execution trace of the specimen and checks that
// it ran the way the specimen promises: one goroutine, producer then consumer,
// no overlap, and no goroutines spawned along the way.
package detector

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"time"

	"golang.org/x/exp/trace"
)

// Kind describes the category of finding.
type Kind string

const (
	KindScopeEscape    Kind = "scope_escape" // static analysis: local storage outlives its frame
	KindMissingRegion  Kind = "missing_region"
	KindRegionOrder    Kind = "region_order"
	KindRegionOverlap  Kind = "region_overlap"
	KindCrossGoroutine Kind = "cross_goroutine"
	KindStrayGoroutine Kind = "stray_goroutine"
)

// Confidence indicates how certain we are about a finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Options controls analysis behavior.
type Options struct {
	Task          string   // task type to check; empty checks all regions as one run
	Regions       []string // expected regions, in order
	DebugFiltered bool     // print every region and goroutine creation to stderr
}

// Finding represents a single detected issue.
type Finding struct {
	Kind        Kind
	Confidence  Confidence
	GoroutineID trace.GoID
	Subject     string // region, variable, or goroutine the finding is about
	Detail      string
	Function    string // top user-code function
	Location    string // file:line of top user-code frame
	Stack       string
}

// Result holds all findings from one analysis pass.
type Result struct {
	TraceFile          string
	DurationMs         int64
	GoroutinesAnalyzed int
	TasksAnalyzed      int
	RegionsAnalyzed    int
	Notes              []string // trace.Log messages from checked tasks
	Findings           []Finding
}

// regionSpan is one region instance.
type regionSpan struct {
	typ   string
	task  trace.TaskID
	g     trace.GoID
	begin trace.Time
	end   trace.Time
	ended bool
	stack string
}

// creation is one goroutine creation event.
type creation struct {
	child    trace.GoID
	parent   trace.GoID
	at       trace.Time
	stack    string
	function string
	location string
}

// traceState is the parse state accumulated over one trace.
type traceState struct {
	tasks      map[trace.TaskID]bool
	taskOrder  []trace.TaskID
	regions    []*regionSpan
	open       map[trace.GoID][]*regionSpan
	creations  []creation
	goroutines map[trace.GoID]bool
	notes      []string
}

// Analyze reads a trace file and returns all findings.
func Analyze(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result, err := AnalyzeReader(f, opts)
	if err != nil {
		return nil, err
	}
	result.TraceFile = path
	return result, nil
}

// AnalyzeReader reads a trace from r and returns all findings.
func AnalyzeReader(r io.Reader, opts Options) (*Result, error) {
	tr, err := trace.NewReader(r)
	if err != nil {
		return nil, err
	}

	st := &traceState{
		tasks:      make(map[trace.TaskID]bool),
		open:       make(map[trace.GoID][]*regionSpan),
		goroutines: make(map[trace.GoID]bool),
	}
	var firstTime, lastTime trace.Time
	first := true

	for {
		ev, err := tr.ReadEvent()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("warn: read event: %v", err)
			break
		}

		if first {
			firstTime = ev.Time()
			first = false
		}
		lastTime = ev.Time()

		switch ev.Kind() {
		case trace.EventTaskBegin:
			t := ev.Task()
			if opts.Task == "" || t.Type == opts.Task {
				if !st.tasks[t.ID] {
					st.tasks[t.ID] = true
					st.taskOrder = append(st.taskOrder, t.ID)
				}
			}

		case trace.EventRegionBegin:
			reg := ev.Region()
			if !st.wants(reg.Task, opts) {
				continue
			}
			stack, _, _ := extractStack(ev.Stack())
			span := &regionSpan{
				typ:   reg.Type,
				task:  reg.Task,
				g:     ev.Goroutine(),
				begin: ev.Time(),
				stack: stack,
			}
			st.regions = append(st.regions, span)
			st.open[span.g] = append(st.open[span.g], span)

		case trace.EventRegionEnd:
			reg := ev.Region()
			if !st.wants(reg.Task, opts) {
				continue
			}
			st.closeRegion(ev.Goroutine(), reg.Type, ev.Time())

		case trace.EventLog:
			l := ev.Log()
			if st.wants(l.Task, opts) {
				st.notes = append(st.notes, fmt.Sprintf("%s: %s", l.Category, l.Message))
			}

		case trace.EventStateTransition:
			stt := ev.StateTransition()
			if stt.Resource.Kind != trace.ResourceGoroutine {
				continue
			}
			gid := stt.Resource.Goroutine()
			st.goroutines[gid] = true

			from, _ := stt.Goroutine()
			if from == trace.GoNotExist {
				stack, function, location := extractStack(stt.Stack)
				if stack == "" {
					stack, function, location = extractStack(ev.Stack())
				}
				st.creations = append(st.creations, creation{
					child:    gid,
					parent:   ev.Goroutine(),
					at:       ev.Time(),
					stack:    stack,
					function: function,
					location: location,
				})
			}
		}
	}

	traceDuration := time.Duration(lastTime-firstTime) * time.Nanosecond

	if opts.DebugFiltered {
		printDebugFiltered(st)
	}

	var findings []Finding
	runs := st.runs(opts)
	for _, run := range runs {
		findings = append(findings, checkRun(run, opts.Regions)...)
		findings = append(findings, detectStrayGoroutines(run, st.creations)...)
	}
	if len(runs) == 0 {
		findings = append(findings, Finding{
			Kind:       KindMissingRegion,
			Confidence: ConfidenceHigh,
			Subject:    opts.Task,
			Detail:     "no matching task found in trace",
		})
	}

	return &Result{
		DurationMs:         traceDuration.Milliseconds(),
		GoroutinesAnalyzed: len(st.goroutines),
		TasksAnalyzed:      len(runs),
		RegionsAnalyzed:    len(st.regions),
		Notes:              st.notes,
		Findings:           findings,
	}, nil
}

// wants reports whether events attached to task id are in scope.
func (st *traceState) wants(id trace.TaskID, opts Options) bool {
	return opts.Task == "" || st.tasks[id]
}

// closeRegion ends the innermost open region of type typ on goroutine g.
func (st *traceState) closeRegion(g trace.GoID, typ string, at trace.Time) {
	stack := st.open[g]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].typ == typ {
			stack[i].end = at
			stack[i].ended = true
			st.open[g] = slices.Delete(stack, i, i+1)
			return
		}
	}
}

// runs groups regions by task, in the order the tasks began. Without a task
// filter every region belongs to a single run.
func (st *traceState) runs(opts Options) [][]*regionSpan {
	if opts.Task == "" {
		if len(st.regions) == 0 {
			return nil
		}
		return [][]*regionSpan{st.regions}
	}

	byTask := make(map[trace.TaskID][]*regionSpan)
	for _, r := range st.regions {
		byTask[r.task] = append(byTask[r.task], r)
	}
	out := make([][]*regionSpan, 0, len(st.taskOrder))
	for _, id := range st.taskOrder {
		out = append(out, byTask[id])
	}
	return out
}

// printDebugFiltered dumps every region and goroutine creation seen.
func printDebugFiltered(st *traceState) {
	fmt.Fprintln(os.Stderr, "=== --debug-filtered: regions ===")
	for _, r := range st.regions {
		end := "open"
		if r.ended {
			end = fmt.Sprintf("%v", time.Duration(r.end-r.begin)*time.Nanosecond)
		}
		fmt.Fprintf(os.Stderr, "  task=%-4d G%-6d %-12s %s\n", r.task, r.g, r.typ, end)
	}
	fmt.Fprintln(os.Stderr, "=== goroutine creations ===")
	for _, c := range st.creations {
		fmt.Fprintf(os.Stderr, "  G%-6d by G%-6d %-40s runtime=%v\n",
			c.child, c.parent, truncate(c.location, 40), isRuntimeGoroutine(c.stack))
	}
	fmt.Fprintln(os.Stderr, "=== end debug-filtered ===")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
