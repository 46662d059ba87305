package format

import (
	"fmt"
	"os"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/ansel1/tfagg/results"
)

// Symbol constants for test results
const (
	SymbolPass       = "✓"
	SymbolFail       = "✗"
	SymbolError      = "!"
	SymbolIgnored    = "∅"
	SymbolAssumption = "?"
)

// Number of trace lines shown per test in the summary
const (
	maxFailureLines = 10
	maxIgnoredLines = 3
)

// SummaryFormatter formats a Summary for display.
type SummaryFormatter struct {
	width        int
	useColors    bool
	passStyle    lipgloss.Style
	failStyle    lipgloss.Style
	skipStyle    lipgloss.Style
	neutralStyle lipgloss.Style
}

// NewSummaryFormatter creates a new summary formatter.
// Colors are automatically enabled if stdout is a TTY.
func NewSummaryFormatter(width int) *SummaryFormatter {
	return NewSummaryFormatterWithColors(width, isatty.IsTerminal(os.Stdout.Fd()))
}

// NewSummaryFormatterWithColors creates a formatter with colors explicitly
// enabled or disabled. A width of zero or less means 80 columns.
func NewSummaryFormatterWithColors(width int, useColors bool) *SummaryFormatter {
	if width <= 0 {
		width = 80
	}
	return &SummaryFormatter{
		width:        width,
		useColors:    useColors,
		passStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // green
		failStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")), // red
		skipStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")), // yellow
		neutralStyle: lipgloss.NewStyle(),
	}
}

// StatusSymbol returns the symbol for a status, colored if enabled.
func (sf *SummaryFormatter) StatusSymbol(s results.Status) string {
	switch s {
	case results.StatusFailed:
		return sf.paint(sf.failStyle, SymbolFail)
	case results.StatusError:
		return sf.paint(sf.failStyle, SymbolError)
	case results.StatusIgnored:
		return sf.paint(sf.skipStyle, SymbolIgnored)
	case results.StatusAssumptionFailed:
		return sf.paint(sf.skipStyle, SymbolAssumption)
	}
	return sf.paint(sf.passStyle, SymbolPass)
}

// Line renders a single result line with its status colored.
func (sf *SummaryFormatter) Line(r results.TestResult) string {
	line := ResultLine(r)
	if !sf.useColors {
		return line
	}
	status := string(r.Status)
	i := strings.LastIndex(line, ": "+status)
	if i < 0 {
		return line
	}
	style := sf.passStyle
	switch {
	case r.Status.IsFailure():
		style = sf.failStyle
	case r.Status != results.StatusPassed:
		style = sf.skipStyle
	}
	start := i + 2
	return line[:start] + style.Render(status) + line[start+len(status):]
}

// Details renders a trace for display under a result line.
func (sf *SummaryFormatter) Details(details string, max int) []string {
	lines := DetailLines(details, max)
	for i, l := range lines {
		if sf.useColors {
			lines[i] = ensureReset(l)
		} else {
			lines[i] = stripansi.Strip(l)
		}
	}
	return lines
}

// Format renders a complete summary as a formatted string.
func (sf *SummaryFormatter) Format(summary *Summary) string {
	var b strings.Builder

	sections := []string{
		sf.formatResults("FAILURES", summary.Failures, maxFailureLines),
		sf.formatResults("ERRORS", summary.Errors, maxFailureLines),
		sf.formatInfraErrors(summary),
		sf.formatResults("IGNORED", summary.Ignored, maxIgnoredLines),
		sf.formatResults("ASSUMPTION FAILURES", summary.AssumptionFailures, maxIgnoredLines),
		sf.formatSlowTests(summary),
		sf.formatModuleSection(summary.Modules),
		sf.formatOverallResults(summary),
	}
	for _, s := range sections {
		if s == "" {
			continue
		}
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

// formatResults lists results grouped by module, with their traces.
func (sf *SummaryFormatter) formatResults(header string, rs []results.TestResult, maxLines int) string {
	if len(rs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(renderSectionHeader(header))

	groups := make(map[string][]results.TestResult)
	order := make([]string, 0)
	for _, r := range rs {
		if _, exists := groups[r.GroupName]; !exists {
			order = append(order, r.GroupName)
		}
		groups[r.GroupName] = append(groups[r.GroupName], r)
	}

	for i, group := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(moduleLabel(group) + "\n")

		for _, r := range groups[group] {
			name := r.TestName
			if name == "" {
				name = "(" + r.TestRunName + ")"
				if r.TestRunName == "" {
					name = "(invocation)"
				}
			}
			b.WriteString(IndentLevel1 + name)
			if r.TestTime != "" {
				b.WriteString(" " + r.TestTime)
			}
			b.WriteString("\n")
			for _, line := range sf.Details(r.Details, maxLines) {
				b.WriteString(line + "\n")
			}
		}
	}

	b.WriteString(sf.horizontalLine())
	return b.String()
}

func (sf *SummaryFormatter) formatInfraErrors(summary *Summary) string {
	if len(summary.InfraErrors) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(renderSectionHeader("INFRASTRUCTURE ERRORS"))
	for _, ie := range summary.InfraErrors {
		b.WriteString(sf.paint(sf.failStyle, SymbolError) + " " + ie.Err.Error() + "\n")
		if ie.Group != "" {
			b.WriteString(IndentLevel1 + "module: " + ie.Group + "\n")
		}
		if ie.Test != "" {
			b.WriteString(IndentLevel1 + "test:   " + ie.Test + "\n")
		}
	}
	if summary.Aborted {
		b.WriteString("Aggregation stopped; results after the error were not recorded.\n")
	}
	b.WriteString(sf.horizontalLine())
	return b.String()
}

func (sf *SummaryFormatter) formatSlowTests(summary *Summary) string {
	if len(summary.SlowTests) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(renderSectionHeader(fmt.Sprintf("SLOW TESTS (>%s)", summary.SlowThreshold)))

	maxNameLen := 0
	for _, r := range summary.SlowTests {
		maxNameLen = max(maxNameLen, len(r.TestName))
	}
	for _, r := range summary.SlowTests {
		fmt.Fprintf(&b, "%-*s  %s\n", maxNameLen, r.TestName, elapsed(r.Elapsed.Milliseconds()))
		fmt.Fprintf(&b, "%s%s\n", IndentLevel1, moduleLabel(r.GroupName))
	}

	b.WriteString(sf.horizontalLine())
	return b.String()
}

// formatModuleSection renders the per-module table.
func (sf *SummaryFormatter) formatModuleSection(modules []*results.GroupResult) string {
	if len(modules) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(renderSectionHeader("MODULES"))

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateRows = false
	t.AppendHeader(table.Row{"", "Module", "Tests", "Passed", "Failed", "Errors", "Ignored", "Assumption", "Time"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Module", WidthMax: max(20, sf.width-60), WidthMaxEnforcer: text.WrapSoft},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
		{Name: "Ignored", Align: text.AlignRight},
		{Name: "Assumption", Align: text.AlignRight},
		{Name: "Time", Align: text.AlignRight},
	})

	for _, g := range modules {
		tests := fmt.Sprintf("%d", g.Counts.Total())
		if g.ExpectedTests > 0 {
			tests = fmt.Sprintf("%d/%d", g.Counts.Total(), g.ExpectedTests)
		}
		t.AppendRow(table.Row{
			sf.StatusSymbol(g.Status()),
			moduleLabel(g.Name),
			tests,
			g.Counts.Passed,
			g.Counts.Failed,
			g.Counts.Errors,
			g.Counts.Ignored,
			g.Counts.AssumptionFailed,
			elapsed(g.Elapsed.Milliseconds()),
		})
	}

	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(sf.horizontalLine())
	return b.String()
}

// formatOverallResults formats the overall statistics section.
func (sf *SummaryFormatter) formatOverallResults(summary *Summary) string {
	var b strings.Builder
	b.WriteString(renderSectionHeader("OVERALL RESULTS"))

	percent := func(n int) float64 {
		if summary.TotalTests == 0 {
			return 0
		}
		return float64(n) / float64(summary.TotalTests) * 100
	}
	c := summary.Counts

	fmt.Fprintf(&b, "Total tests:    %d\n", summary.TotalTests)
	fmt.Fprintf(&b, "Passed:         %d %s (%.1f%%)\n", c.Passed, sf.StatusSymbol(results.StatusPassed), percent(c.Passed))
	fmt.Fprintf(&b, "Failed:         %d %s (%.1f%%)\n", c.Failed, sf.StatusSymbol(results.StatusFailed), percent(c.Failed))
	if c.Errors > 0 {
		fmt.Fprintf(&b, "Errors:         %d %s (%.1f%%)\n", c.Errors, sf.StatusSymbol(results.StatusError), percent(c.Errors))
	}
	fmt.Fprintf(&b, "Ignored:        %d %s (%.1f%%)\n", c.Ignored, sf.StatusSymbol(results.StatusIgnored), percent(c.Ignored))
	if c.AssumptionFailed > 0 {
		fmt.Fprintf(&b, "Assumption:     %d %s (%.1f%%)\n", c.AssumptionFailed, sf.StatusSymbol(results.StatusAssumptionFailed), percent(c.AssumptionFailed))
	}
	if len(summary.InfraErrors) > 0 {
		fmt.Fprintf(&b, "Infra errors:   %d\n", len(summary.InfraErrors))
	}
	fmt.Fprintf(&b, "Total time:     %s\n", elapsed(summary.TotalTime.Milliseconds()))
	fmt.Fprintf(&b, "Modules:        %d\n", summary.ModuleCount)
	if summary.LogAssociations > 0 {
		fmt.Fprintf(&b, "Logs:           %d\n", summary.LogAssociations)
	}

	b.WriteString(sf.horizontalLine())
	return b.String()
}

func (sf *SummaryFormatter) paint(style lipgloss.Style, s string) string {
	if !sf.useColors {
		return s
	}
	return style.Render(s)
}

// horizontalLine returns a horizontal separator line.
func (sf *SummaryFormatter) horizontalLine() string {
	return strings.Repeat("-", sf.width)
}

func renderSectionHeader(header string) string {
	return header + "\n" + strings.Repeat("-", len(header)) + "\n"
}

// ensureReset appends a terminal reset sequence if the string doesn't end with one.
func ensureReset(s string) string {
	reset := "\x1b[0m"
	if strings.HasSuffix(s, reset) {
		return s
	}
	return s + reset
}

// elapsed formats milliseconds like results.FormatDuration, without parentheses.
func elapsed(ms int64) string {
	return strings.Trim(results.FormatDuration(ms), "()")
}

func moduleLabel(name string) string {
	if name == "" {
		return "(no module)"
	}
	return name
}
