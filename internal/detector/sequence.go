package detector

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/exp/trace"
)

// checkRun verifies one specimen run: every expected region appears and ends,
// they begin in the expected order, none overlaps the next, and all of them
// execute on the same goroutine.
func checkRun(run []*regionSpan, expected []string) []Finding {
	var findings []Finding

	byBegin := slices.Clone(run)
	slices.SortStableFunc(byBegin, func(a, b *regionSpan) int {
		switch {
		case a.begin < b.begin:
			return -1
		case a.begin > b.begin:
			return 1
		}
		return 0
	})

	present := make(map[string]bool, len(byBegin))
	for _, r := range byBegin {
		present[r.typ] = true
		if !r.ended {
			findings = append(findings, Finding{
				Kind:        KindMissingRegion,
				Confidence:  ConfidenceMedium,
				GoroutineID: r.g,
				Subject:     r.typ,
				Detail:      "region began but never ended before the trace stopped",
				Stack:       r.stack,
			})
		}
	}
	for _, name := range expected {
		if !present[name] {
			findings = append(findings, Finding{
				Kind:       KindMissingRegion,
				Confidence: ConfidenceHigh,
				Subject:    name,
				Detail:     "expected region not found in run",
			})
		}
	}

	if got := observedOrder(byBegin, expected); !isSubsequence(expected, got) && len(got) > 0 {
		findings = append(findings, Finding{
			Kind:       KindRegionOrder,
			Confidence: ConfidenceHigh,
			Subject:    strings.Join(got, " → "),
			Detail:     fmt.Sprintf("regions ran as %s, want %s", strings.Join(got, " → "), strings.Join(expected, " → ")),
		})
	}

	for i := 1; i < len(byBegin); i++ {
		prev, cur := byBegin[i-1], byBegin[i]
		if prev.ended && cur.begin < prev.end {
			findings = append(findings, Finding{
				Kind:        KindRegionOverlap,
				Confidence:  ConfidenceHigh,
				GoroutineID: cur.g,
				Subject:     prev.typ + "/" + cur.typ,
				Detail: fmt.Sprintf("%s began %v before %s ended",
					cur.typ, time.Duration(prev.end-cur.begin)*time.Nanosecond, prev.typ),
				Stack: cur.stack,
			})
		}
	}

	if len(byBegin) > 0 {
		owner := byBegin[0].g
		for _, r := range byBegin[1:] {
			if r.g != owner {
				findings = append(findings, Finding{
					Kind:        KindCrossGoroutine,
					Confidence:  ConfidenceHigh,
					GoroutineID: r.g,
					Subject:     r.typ,
					Detail:      fmt.Sprintf("%s ran on goroutine %d, %s on goroutine %d", byBegin[0].typ, owner, r.typ, r.g),
					Stack:       r.stack,
				})
			}
		}
	}

	return findings
}

// detectStrayGoroutines reports goroutines spawned from inside one of the
// run's regions by the goroutine executing it. Runtime-internal goroutines are
// ignored.
func detectStrayGoroutines(run []*regionSpan, creations []creation) []Finding {
	var findings []Finding
	for _, c := range creations {
		if isRuntimeGoroutine(c.stack) {
			continue
		}
		for _, r := range run {
			if c.parent != r.g || c.at < r.begin || (r.ended && c.at > r.end) {
				continue
			}
			findings = append(findings, Finding{
				Kind:        KindStrayGoroutine,
				Confidence:  ConfidenceHigh,
				GoroutineID: c.child,
				Subject:     r.typ,
				Detail:      fmt.Sprintf("goroutine %d spawned inside region %s", c.child, r.typ),
				Function:    c.function,
				Location:    c.location,
				Stack:       c.stack,
			})
			break
		}
	}
	return findings
}

// observedOrder lists the expected region types in the order they began,
// ignoring regions that are not expected.
func observedOrder(byBegin []*regionSpan, expected []string) []string {
	var got []string
	for _, r := range byBegin {
		if slices.Contains(expected, r.typ) {
			got = append(got, r.typ)
		}
	}
	return got
}

// isSubsequence reports whether got visits the names of want in order, each
// exactly once. Missing names are reported separately.
func isSubsequence(want, got []string) bool {
	i := 0
	for _, g := range got {
		for i < len(want) && want[i] != g {
			i++
		}
		if i == len(want) {
			return false
		}
		i++
	}
	return true
}

// GoroutineLabel renders a goroutine ID, or "-" for findings with none.
func GoroutineLabel(id trace.GoID) string {
	if id == 0 || id == trace.NoGoroutine {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}
