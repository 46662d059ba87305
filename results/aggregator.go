package results

import (
	"maps"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ansel1/tfagg/parser"
)

// Aggregator turns the lifecycle events of one runner invocation into
// TestResults.
//
// Start events (module, run, test) must be closed by their paired end
// event before the enclosing scope closes. Intermediate events (test
// failed, ignored, assumption failure) leave a sticky flag that the
// matching TEST_ENDED consumes to pick the test's status.
//
// An Aggregator is not safe for concurrent use; events must be processed
// in the order the runner produced them.
type Aggregator struct {
	sink       ResultSink
	runnerName string
	log        log.Logger

	state           ConnectionState
	stack           eventStack
	logAssociations []parser.LogAssociation
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger used for debug tracing and salvage warnings.
func WithLogger(l log.Logger) Option {
	return func(a *Aggregator) {
		a.log = l
	}
}

// NewAggregator creates an aggregator emitting to sink.
func NewAggregator(sink ResultSink, runnerName string, opts ...Option) *Aggregator {
	a := &Aggregator{
		sink:       sink,
		runnerName: runnerName,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = log.New("component", "aggregator")
	}
	return a
}

// ProcessEvent processes one event given by wire name and data.
// Balance is checked on the name before the data is decoded, so an
// unbalanced event is reported as such even when its data is incomplete,
// and a well-placed end event closes its scope before a missing or
// mistyped field is returned as a decoding error.
func (a *Aggregator) ProcessEvent(name string, data map[string]any) error {
	a.log.Debug("Processing event", "event", name, "data", data)

	kind := parser.ParseKind(name)
	if kind == parser.KindUnknown {
		a.log.Debug("Ignoring unrecognized event", "event", name)
		return nil
	}
	if err := a.checkBalanced(kind); err != nil {
		return err
	}
	evt, err := parser.Decode(name, data)
	if err != nil {
		return err
	}
	return a.apply(evt)
}

// Process consumes one event, emitting at most one result.
//
// It returns an *ImbalanceError when an end event doesn't close the most
// recent open start event. If that start event was a test with a captured
// failure, the failure is emitted before the error is returned. A
// *TimingError is returned, after the result was emitted, when a test ends
// before it started.
func (a *Aggregator) Process(evt parser.Event) error {
	a.log.Debug("Processing event", "event", evt.Name, "data", evt.Data)

	if evt.Kind == parser.KindUnknown {
		a.log.Debug("Ignoring unrecognized event", "event", evt.Name)
		return nil
	}
	if err := a.checkBalanced(evt.Kind); err != nil {
		return err
	}
	return a.apply(evt)
}

// apply runs the state transition of an event that passed the balance check.
func (a *Aggregator) apply(evt parser.Event) error {
	switch p := evt.Payload.(type) {
	case parser.ModuleStarted:
		a.state.CurrentGroup = p.ModuleName
		a.state.LastFailed = nil
		a.state.CurrentTest = ""

	case parser.RunStarted:
		total := p.TestCount
		a.state.TestRunName = p.RunName
		a.state.CurrentGroupTotal = &total
		a.state.RunAttempt = p.RunAttempt
		a.state.TestCount = 0
		a.state.LastFailed = nil
		a.state.CurrentTest = ""

	case parser.TestStarted:
		start := p.StartTime
		a.state.CurrentTest = p.QualifiedName()
		a.state.TestCount++
		a.state.TestStartTime = &start

	case parser.TestFailed:
		a.state.LastFailed = &Failure{Name: p.QualifiedName(), Trace: p.Trace}

	case parser.TestIgnored:
		a.state.LastIgnored = p.QualifiedName()

	case parser.TestAssumptionFailure:
		a.state.LastAssumptionFailed = p.QualifiedName()

	case parser.TestEnded:
		return a.testEnded(p)

	case parser.RunFailed:
		// The run may have failed before any test started.
		a.emit(TestResult{
			TestName: a.state.CurrentTest,
			Status:   StatusError,
			Details:  p.Reason,
		})

	case parser.InvocationFailed:
		// Broadest failure; no module or run may have started.
		a.emit(TestResult{
			TestName: a.state.CurrentTest,
			Status:   StatusError,
			Details:  p.Cause,
		})

	case parser.LogAssociation:
		a.logAssociations = append(a.logAssociations, p)
	}
	return nil
}

func (a *Aggregator) testEnded(p parser.TestEnded) error {
	name := p.QualifiedName()

	var (
		testTime string
		elapsed  time.Duration
		err      error
	)
	if start := a.state.TestStartTime; start != nil {
		delta := p.EndTime - *start
		if delta < 0 {
			err = &TimingError{Test: name, StartTime: *start, EndTime: p.EndTime}
		} else {
			testTime = FormatDuration(delta)
			elapsed = time.Duration(delta) * time.Millisecond
		}
	}

	status, trace := a.resolveStatus(name)

	info := make(map[string]any, len(p.Extra))
	maps.Copy(info, p.Extra)

	a.emit(TestResult{
		TestName:       name,
		Status:         status,
		Details:        trace,
		TestTime:       testTime,
		Elapsed:        elapsed,
		AdditionalInfo: info,
	})
	return err
}

// resolveStatus consumes the sticky flag matching name, if any. Failure
// wins over assumption failure, which wins over ignored.
func (a *Aggregator) resolveStatus(name string) (Status, string) {
	switch {
	case a.state.LastFailed != nil && a.state.LastFailed.Name == name:
		trace := a.state.LastFailed.Trace
		a.state.LastFailed = nil
		return StatusFailed, trace
	case a.state.LastAssumptionFailed != "" && a.state.LastAssumptionFailed == name:
		a.state.LastAssumptionFailed = ""
		return StatusAssumptionFailed, ""
	case a.state.LastIgnored != "" && a.state.LastIgnored == name:
		a.state.LastIgnored = ""
		return StatusIgnored, ""
	}
	return StatusPassed, ""
}

func (a *Aggregator) checkBalanced(kind parser.EventKind) error {
	if kind.IsStart() {
		a.stack.push(kind)
		return nil
	}
	if !kind.IsEnd() {
		return nil
	}
	open, ok := a.stack.pop()
	if !ok {
		return &ImbalanceError{Got: kind}
	}
	if open.EndKind() != kind {
		a.salvage(open)
		return &ImbalanceError{Open: open, Got: kind}
	}
	return nil
}

// salvage emits the captured failure of a test whose scope is being torn
// down without its TEST_ENDED, so a runner crash right after a failure
// doesn't lose it.
func (a *Aggregator) salvage(open parser.EventKind) {
	if open != parser.KindTestStarted || a.state.LastFailed == nil {
		return
	}
	failed := a.state.LastFailed
	a.state.LastFailed = nil
	a.log.Warn("Reporting failure of test interrupted mid-stream", "test", failed.Name)
	a.emit(TestResult{
		TestName: failed.Name,
		Status:   StatusFailed,
		Details:  failed.Trace,
	})
}

// Finish ends the session. If start events are still open the stream was
// truncated: the innermost open test's captured failure is salvaged and an
// *ImbalanceError with Truncated set is returned.
func (a *Aggregator) Finish() error {
	open, ok := a.stack.peek()
	if !ok {
		return nil
	}
	a.salvage(open)
	return &ImbalanceError{Open: open, Truncated: true}
}

func (a *Aggregator) emit(r TestResult) {
	r.RunnerName = a.runnerName
	r.GroupName = a.state.CurrentGroup
	r.TestCount = a.state.TestCount
	r.TestRunName = a.state.TestRunName
	r.RunAttempt = a.state.RunAttempt
	if a.state.CurrentGroupTotal != nil {
		total := *a.state.CurrentGroupTotal
		r.GroupTotal = &total
	}
	if r.AdditionalInfo == nil {
		r.AdditionalInfo = map[string]any{}
	}
	if a.sink != nil {
		a.sink.Accept(r)
	}
}

// State returns a copy of the current aggregation state.
func (a *Aggregator) State() ConnectionState {
	return a.state.clone()
}

// Depth returns the number of open start events.
func (a *Aggregator) Depth() int {
	return a.stack.depth()
}

// LogAssociations returns the LOG_ASSOCIATION payloads seen so far.
func (a *Aggregator) LogAssociations() []parser.LogAssociation {
	return append([]parser.LogAssociation(nil), a.logAssociations...)
}

// eventStack holds the open start events, innermost last.
type eventStack []parser.EventKind

func (s *eventStack) push(k parser.EventKind) {
	*s = append(*s, k)
}

func (s *eventStack) pop() (parser.EventKind, bool) {
	k, ok := s.peek()
	if ok {
		*s = (*s)[:len(*s)-1]
	}
	return k, ok
}

func (s *eventStack) peek() (parser.EventKind, bool) {
	if len(*s) == 0 {
		return parser.KindUnknown, false
	}
	return (*s)[len(*s)-1], true
}

func (s *eventStack) depth() int {
	return len(*s)
}
