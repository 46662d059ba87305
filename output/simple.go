package output

import (
	"fmt"
	"io"
	"time"

	"github.com/ansel1/tfagg/engine"
	"github.com/ansel1/tfagg/output/format"
	"github.com/ansel1/tfagg/results"
)

// DefaultSlowThreshold is the elapsed time above which a test is listed
// in the summary's SLOW TESTS section.
const DefaultSlowThreshold = 10 * time.Second

// SimpleOutput writes plain text output for -notty mode.
// It prints one line per result as results arrive, passes runner output
// through, and prints the summary at completion.
type SimpleOutput struct {
	writer        io.Writer
	collector     *results.Collector
	formatter     *format.SummaryFormatter
	slowThreshold time.Duration
	err           error

	// Lightweight counters for exit code determination
	failed int
}

// Option configures a SimpleOutput.
type Option func(*SimpleOutput)

// WithSlowThreshold overrides DefaultSlowThreshold.
func WithSlowThreshold(d time.Duration) Option {
	return func(s *SimpleOutput) {
		s.slowThreshold = d
	}
}

// WithFormatter overrides the summary formatter, e.g. to force colors off.
func WithFormatter(f *format.SummaryFormatter) Option {
	return func(s *SimpleOutput) {
		s.formatter = f
	}
}

// NewSimpleOutput creates a simple output writer and registers it as a
// sink of the collector.
func NewSimpleOutput(w io.Writer, collector *results.Collector, opts ...Option) *SimpleOutput {
	s := &SimpleOutput{
		writer:        w,
		collector:     collector,
		slowThreshold: DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.formatter == nil {
		s.formatter = format.NewSummaryFormatter(80)
	}
	collector.AddSink(s)
	return s
}

// Accept implements results.ResultSink.
func (s *SimpleOutput) Accept(r results.TestResult) {
	if r.Status.IsFailure() {
		s.failed++
	}
	s.println(s.formatter.Line(r))
	if r.Status.IsFailure() {
		for _, line := range s.formatter.Details(r.Details, 0) {
			s.println(line)
		}
	}
}

// ProcessEvents feeds engine events to the collector and writes output
// until the stream completes.
func (s *SimpleOutput) ProcessEvents(events <-chan engine.Event) error {
	for evt := range events {
		switch evt.Type {
		case engine.EventRawLine:
			s.println(string(evt.RawLine))

		case engine.EventError:
			s.println(fmt.Sprintf("Error: %v", evt.Error))

		case engine.EventComplete:
			s.collector.Push(evt)
			return s.writeSummary()
		}
		s.collector.Push(evt)
	}

	// The stream was closed without EventComplete
	s.collector.Finish()
	return s.writeSummary()
}

// writeSummary prints the summary of the finished run.
func (s *SimpleOutput) writeSummary() error {
	summary := format.ComputeSummary(s.collector.Run(), s.slowThreshold)
	s.println("")
	s.println(s.formatter.Format(summary))
	return s.err
}

func (s *SimpleOutput) println(line string) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintln(s.writer, line)
}

// HasFailures returns true if any test failed or errored.
func (s *SimpleOutput) HasFailures() bool {
	return s.failed > 0
}

// HasInfraErrors returns true if the event stream was broken.
func (s *SimpleOutput) HasInfraErrors() bool {
	return len(s.collector.Run().InfraErrors) > 0
}
