package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ansel1/tfagg/output/format"
	"github.com/ansel1/tfagg/results"
)

// ResultsEventMsg wraps results events for bubbletea
type ResultsEventMsg results.Event

// EOFMsg signals that the input stream has been closed
type EOFMsg struct{}

// ModuleState tracks the display state of one module.
//
// Counts are accumulated from result events. A module is running while it
// is the aggregator's current group and the invocation hasn't finished.
type ModuleState struct {
	Name        string
	Counts      results.Counts
	Expected    int           // Tests announced by the module's runs, 0 if unknown
	StartTime   time.Time     // When the first event for the module arrived
	ElapsedTime time.Duration // Sum of the reported test durations
}

// Done returns the number of results recorded for the module.
func (ms *ModuleState) Done() int {
	return ms.Counts.Total()
}

// Failed reports whether any test in the module failed or errored.
func (ms *ModuleState) Failed() bool {
	return ms.Counts.Failed > 0 || ms.Counts.Errors > 0
}

// Model is the live view of a runner invocation.
//
// The Model implements the Bubbletea Model interface. It consumes
// results.Event from the results.Collector: progress events move the
// in-flight module and test, result events update counts, and failures,
// infrastructure errors and runner output are printed above the view.
type Model struct {
	// Collector reference (read-only from TUI perspective)
	collector *results.Collector

	Modules     map[string]*ModuleState
	ModuleOrder []string

	// In-flight position from the last progress event
	CurrentModule string
	CurrentTest   string
	TestCount     int
	GroupTotal    *int
	TestStartTime time.Time

	// Summary counters
	Counts      results.Counts
	InfraErrors int

	// Terminal state
	TerminalWidth  int
	TerminalHeight int

	// Styles
	passStyle    lipgloss.Style
	failStyle    lipgloss.Style
	skipStyle    lipgloss.Style
	neutralStyle lipgloss.Style
	formatter    *format.SummaryFormatter

	// Replay state
	ReplayMode bool
	ReplayRate float64

	Finished         bool
	StartTime        time.Time
	TotalElapsedTime time.Duration
	SlowThreshold    time.Duration
	spinner          spinner.Model
}

// NewModel creates a new TUI model
func NewModel(replayMode bool, replayRate float64, collector *results.Collector) *Model {
	s := spinner.New()
	s.Spinner = spinner.Jump

	return &Model{
		collector:      collector,
		Modules:        make(map[string]*ModuleState),
		ModuleOrder:    make([]string, 0),
		TerminalWidth:  80,
		TerminalHeight: 24,
		passStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // green
		failStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")), // red
		skipStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")), // yellow
		neutralStyle:   lipgloss.NewStyle(),
		spinner:        s,
		ReplayMode:     replayMode,
		ReplayRate:     replayRate,
		StartTime:      time.Now(),
		SlowThreshold:  10 * time.Second,
	}
}

// SetFormatter overrides the formatter used for result lines and the summary.
func (m *Model) SetFormatter(f *format.SummaryFormatter) {
	m.formatter = f
}

func (m *Model) summaryFormatter() *format.SummaryFormatter {
	if m.formatter == nil {
		m.formatter = format.NewSummaryFormatter(m.TerminalWidth)
	}
	return m.formatter
}

// Init initializes the model and returns the initial command
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ResultsEventMsg:
		return m, m.handleResultsEvent(results.Event(msg))

	case tea.WindowSizeMsg:
		m.TerminalWidth = msg.Width
		m.TerminalHeight = msg.Height

	case EOFMsg:
		m.finish()
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.finish()
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) finish() {
	if m.Finished {
		return
	}
	m.Finished = true
	m.TotalElapsedTime = time.Since(m.StartTime)
}

// handleResultsEvent updates the model from a collector event. Output that
// should scroll above the live view is returned as a print command.
func (m *Model) handleResultsEvent(evt results.Event) tea.Cmd {
	switch evt.Type {
	case results.EventRawOutput:
		return tea.Println(expandTabs(string(evt.RawLine), 8))

	case results.EventProgress:
		m.handleProgress(evt.State)

	case results.EventResult:
		return m.handleResult(evt.Result)

	case results.EventInfraError:
		m.InfraErrors++
		return tea.Println(m.failStyle.Render("infrastructure error: " + evt.InfraError.Err.Error()))

	case results.EventFinished:
		m.finish()
		return tea.Quit
	}
	return nil
}

func (m *Model) handleProgress(state results.ConnectionState) {
	if state.CurrentGroup != "" {
		m.module(state.CurrentGroup)
	}
	m.CurrentModule = state.CurrentGroup
	if state.CurrentTest != m.CurrentTest || state.TestCount != m.TestCount {
		m.TestStartTime = time.Now()
	}
	m.CurrentTest = state.CurrentTest
	m.TestCount = state.TestCount
	m.GroupTotal = state.CurrentGroupTotal
}

func (m *Model) handleResult(r results.TestResult) tea.Cmd {
	ms := m.module(r.GroupName)
	ms.Counts.Add(r.Status)
	ms.ElapsedTime += r.Elapsed
	if r.GroupTotal != nil && *r.GroupTotal > ms.Expected {
		ms.Expected = *r.GroupTotal
	}
	m.Counts.Add(r.Status)

	if r.Status == results.StatusPassed {
		return nil
	}
	f := m.summaryFormatter()
	lines := []string{f.Line(r)}
	if r.Status.IsFailure() {
		lines = append(lines, f.Details(r.Details, 10)...)
	}
	return tea.Println(strings.Join(lines, "\n"))
}

func (m *Model) module(name string) *ModuleState {
	ms, ok := m.Modules[name]
	if !ok {
		ms = &ModuleState{Name: name, StartTime: time.Now()}
		m.Modules[name] = ms
		m.ModuleOrder = append(m.ModuleOrder, name)
	}
	return ms
}

// View renders the TUI
func (m *Model) View() string {
	return strings.TrimRight(m.render(), "\n")
}

// String renders the TUI
func (m *Model) String() string {
	return m.View()
}

// HasFailures returns true if any tests failed or errored
func (m *Model) HasFailures() bool {
	return m.Counts.Failed > 0 || m.Counts.Errors > 0
}

// scaled converts wall time to the original run's time in replay mode.
func (m *Model) scaled(d time.Duration) time.Duration {
	if m.ReplayMode && m.ReplayRate != 1.0 && m.ReplayRate != 0 {
		return time.Duration(float64(d) / m.ReplayRate)
	}
	return d
}

// formatElapsedTime formats elapsed time as X.Xs, or X.Xm from a minute on.
func formatElapsedTime(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 0.05 {
		return "0.0s"
	}
	if seconds >= 60 {
		return fmt.Sprintf("%.1fm", seconds/60)
	}
	return fmt.Sprintf("%.1fs", seconds)
}

func (m *Model) render() string {
	var b strings.Builder

	// Modules that don't fit are elided from the top, oldest first
	available := m.TerminalHeight - 3
	order := m.ModuleOrder
	if available < 1 {
		available = 1
	}
	if len(order) > available {
		fmt.Fprintf(&b, "  … %d more modules\n", len(order)-available+1)
		order = order[len(order)-available+1:]
	}

	for _, name := range order {
		m.renderModule(&b, m.Modules[name])
	}

	if !m.Finished && m.CurrentTest != "" {
		m.renderCurrentTest(&b)
	}

	if len(m.ModuleOrder) > 0 {
		b.WriteString(strings.Repeat("-", m.TerminalWidth))
		b.WriteString("\n")
	}

	m.renderSummaryLine(&b)
	return b.String()
}

// renderModule renders the module line with its counts
func (m *Model) renderModule(b *strings.Builder, ms *ModuleState) {
	running := !m.Finished && ms.Name == m.CurrentModule

	passedStr := fmt.Sprintf("%s %d", format.SymbolPass, ms.Counts.Passed)
	if ms.Counts.Passed > 0 {
		passedStr = m.passStyle.Render(passedStr)
	} else {
		passedStr = m.neutralStyle.Render(passedStr)
	}

	failedStr := fmt.Sprintf("%s %d", format.SymbolFail, ms.Counts.Failed+ms.Counts.Errors)
	if ms.Failed() {
		failedStr = m.failStyle.Render(failedStr)
	} else {
		failedStr = m.neutralStyle.Render(failedStr)
	}

	skipped := ms.Counts.Ignored + ms.Counts.AssumptionFailed
	skippedStr := fmt.Sprintf("%s %d", format.SymbolIgnored, skipped)
	if skipped > 0 {
		skippedStr = m.skipStyle.Render(skippedStr)
	} else {
		skippedStr = m.neutralStyle.Render(skippedStr)
	}

	elapsed := ms.ElapsedTime
	if running {
		elapsed = m.scaled(time.Since(ms.StartTime))
	}

	progress := fmt.Sprintf("%d", ms.Done())
	if ms.Expected > 0 {
		progress = fmt.Sprintf("%d/%d", ms.Done(), ms.Expected)
	}

	name := ms.Name
	if name == "" {
		name = "(no module)"
	}

	prefix := "  "
	if running {
		prefix = m.getSpinnerPrefix(ms.Failed())
	} else if ms.Failed() {
		prefix = m.failStyle.Render(format.SymbolFail) + " "
	} else {
		prefix = m.passStyle.Render(format.SymbolPass) + " "
	}

	right := fmt.Sprintf("%s  %s  %s  %7s  %s", passedStr, failedStr, skippedStr, progress, formatElapsedTime(elapsed))
	m.renderAlignedLine(b, name, right, prefix)
}

// renderCurrentTest renders the in-flight test under the modules
func (m *Model) renderCurrentTest(b *strings.Builder) {
	counter := fmt.Sprintf("[%d]", m.TestCount)
	if m.GroupTotal != nil {
		counter = fmt.Sprintf("[%d/%d]", m.TestCount, *m.GroupTotal)
	}
	left := counter + " " + m.CurrentTest
	right := formatElapsedTime(m.scaled(time.Since(m.TestStartTime)))
	m.renderAlignedLine(b, left, right, "    "+m.getSpinnerPrefix(false))
}

// getSpinnerPrefix returns the spinner string with appropriate color
func (m *Model) getSpinnerPrefix(failed bool) string {
	spinnerView := m.spinner.View()
	if failed {
		return m.failStyle.Render(spinnerView) + " "
	}
	return m.passStyle.Render(spinnerView) + " "
}

// renderAlignedLine renders a line with left-aligned and right-aligned content
func (m *Model) renderAlignedLine(b *strings.Builder, left, right, prefix string) {
	prefixWidth := lipgloss.Width(prefix)
	rightWidth := lipgloss.Width(right)

	availableWidth := max(m.TerminalWidth-rightWidth-2-prefixWidth, 0)
	left = truncateLine(expandTabs(left, 8), availableWidth)
	padding := max(availableWidth-lipgloss.Width(left), 0)

	b.WriteString(prefix)
	b.WriteString(ensureReset(left))
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString("  ")
	b.WriteString(right)
	b.WriteString("\n")
}

// renderSummaryLine renders the totals line
func (m *Model) renderSummaryLine(b *strings.Builder) {
	elapsed := m.TotalElapsedTime
	if !m.Finished {
		elapsed = time.Since(m.StartTime)
	}
	elapsed = m.scaled(elapsed)

	status := "RUNNING"
	if m.Finished {
		status = "PASSED"
		if m.HasFailures() || m.InfraErrors > 0 {
			status = "FAILED"
		}
	}

	c := m.Counts
	left := fmt.Sprintf("%s: %d passed, %d failed, %d errors, %d ignored, %d assumption failures, %d total",
		status, c.Passed, c.Failed, c.Errors, c.Ignored, c.AssumptionFailed, c.Total())
	if m.InfraErrors > 0 {
		left += fmt.Sprintf(", %d infra errors", m.InfraErrors)
	}

	prefix := "  "
	if !m.Finished {
		prefix = m.getSpinnerPrefix(m.HasFailures())
	}
	m.renderAlignedLine(b, left, formatElapsedTime(elapsed), prefix)
}

// DisplaySummary computes the summary of the collector's run and writes it to w.
//
// This is called after the TUI exits, either when the invocation finishes
// or when the user quits with ctrl+c, q or esc.
func (m *Model) DisplaySummary(w io.Writer) {
	if m.collector == nil {
		return
	}

	var summary *format.Summary
	m.collector.WithRun(func(run *results.Run) {
		summary = format.ComputeSummary(run, m.SlowThreshold)
	})

	fmt.Fprintln(w)
	fmt.Fprintln(w, m.summaryFormatter().Format(summary))
}
