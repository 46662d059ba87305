package format

import (
	"fmt"
	"strings"

	"github.com/ansel1/tfagg/results"
)

// ResultLine renders one result as
//
//	[N/T] Group Name: STATUS (time)
//
// The total is omitted when the run didn't announce one. Invocation-level
// errors have no test name and no time.
func ResultLine(r results.TestResult) string {
	var b strings.Builder
	if r.GroupTotal != nil {
		fmt.Fprintf(&b, "[%d/%d] ", r.TestCount, *r.GroupTotal)
	} else if r.TestCount > 0 {
		fmt.Fprintf(&b, "[%d] ", r.TestCount)
	}

	name := strings.TrimSpace(r.GroupName + " " + r.TestName)
	if name == "" {
		name = r.RunnerName
	}
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(string(r.Status))
	if r.TestTime != "" {
		b.WriteString(" ")
		b.WriteString(r.TestTime)
	}
	return b.String()
}

// DetailLines splits a trace into indented lines, keeping at most max
// lines (0 keeps all). Trailing blank lines are dropped.
func DetailLines(details string, max int) []string {
	details = strings.TrimRight(details, "\r\n\t ")
	if details == "" {
		return nil
	}
	lines := strings.Split(details, "\n")
	truncated := 0
	if max > 0 && len(lines) > max {
		truncated = len(lines) - max
		lines = lines[:max]
	}
	out := make([]string, 0, len(lines)+1)
	for _, l := range lines {
		out = append(out, IndentLevel2+expandTabs(strings.TrimRight(l, "\r"), 8))
	}
	if truncated > 0 {
		out = append(out, fmt.Sprintf("%s... %d more lines", IndentLevel2, truncated))
	}
	return out
}

// Indentation constants
const (
	IndentLevel1 = "  "   // 2 spaces
	IndentLevel2 = "    " // 4 spaces
)

// expandTabs replaces tab characters with spaces.
func expandTabs(s string, tabWidth int) string {
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteRune(r)
			col = 0
		case '\t':
			spaces := tabWidth - (col % tabWidth)
			b.WriteString(strings.Repeat(" ", spaces))
			col += spaces
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
