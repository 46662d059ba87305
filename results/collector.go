package results

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ansel1/tfagg/engine"
	"github.com/ansel1/tfagg/parser"
)

// DefaultRunnerName is reported in results when no runner name is configured.
const DefaultRunnerName = "TradefedTestRunner"

// Collector drives an Aggregator from engine events and keeps the Run
// model of one runner invocation.
//
// The Collector is the aggregator's sink. Recorded results are forwarded
// to additional sinks and published to subscribers after the state lock
// is released. A malformed or unbalanced event stream aborts aggregation:
// the error is recorded as an InfraError and later runner events are
// dropped.
type Collector struct {
	mu      sync.RWMutex
	run     *Run
	agg     *Aggregator
	pending []TestResult
	err     error

	sinks []ResultSink
	log   log.Logger

	subscribers []chan Event
	subMu       sync.Mutex
	closed      bool

	runnerName   string
	invocationID string
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithRunnerName sets the runner name stamped on every result.
func WithRunnerName(name string) CollectorOption {
	return func(c *Collector) {
		c.runnerName = name
	}
}

// WithInvocationID overrides the generated invocation ID.
func WithInvocationID(id string) CollectorOption {
	return func(c *Collector) {
		c.invocationID = id
	}
}

// WithSink forwards every recorded result to s.
func WithSink(s ResultSink) CollectorOption {
	return func(c *Collector) {
		c.sinks = append(c.sinks, s)
	}
}

// WithCollectorLogger sets the logger, which is also handed to the aggregator.
func WithCollectorLogger(l log.Logger) CollectorOption {
	return func(c *Collector) {
		c.log = l
	}
}

// NewCollector creates a new result collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		runnerName:  DefaultRunnerName,
		subscribers: make([]chan Event, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.invocationID == "" {
		c.invocationID = uuid.New().String()
	}
	if c.log == nil {
		c.log = log.New()
	}
	c.log = c.log.New("invocation", c.invocationID)
	c.run = NewRun(c.invocationID, c.runnerName)
	c.agg = NewAggregator(SinkFunc(c.record), c.runnerName, WithLogger(c.log.New("component", "aggregator")))
	return c
}

// AddSink forwards every result recorded from now on to s.
func (c *Collector) AddSink(s ResultSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Subscribe returns a channel that will receive collector events.
// The caller should read from this channel until it is closed.
func (c *Collector) Subscribe() <-chan Event {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan Event, 100)
	if c.closed {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// emit sends an event to all subscribers.
func (c *Collector) emit(evt Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.closed {
		return
	}
	for _, sub := range c.subscribers {
		sub <- evt
	}
}

// closeSubscribers closes all subscriber channels.
func (c *Collector) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for _, sub := range c.subscribers {
		close(sub)
	}
}

// ProcessEvents consumes engine events until the channel is closed.
func (c *Collector) ProcessEvents(events <-chan engine.Event) {
	for evt := range events {
		c.Push(evt)
	}
	// A stream that closes without EventComplete still ends the invocation
	c.Finish()
}

// Push processes a single engine event.
func (c *Collector) Push(evt engine.Event) {
	switch evt.Type {
	case engine.EventRawLine:
		c.emit(NewRawOutputEvent(c.invocationID, evt.RawLine))

	case engine.EventTest:
		c.handleEvent(evt.Event)

	case engine.EventError:
		c.mu.Lock()
		if c.run.Finished {
			c.mu.Unlock()
			c.log.Debug("Dropping stream error after finish", "err", evt.Error)
			return
		}
		ie := c.abortLocked(evt.Error)
		c.mu.Unlock()
		c.emit(NewInfraErrorEvent(c.invocationID, ie))

	case engine.EventComplete:
		c.Finish()
	}
}

func (c *Collector) handleEvent(evt parser.Event) {
	c.mu.Lock()
	if c.run.Aborted || c.run.Finished {
		c.mu.Unlock()
		c.log.Debug("Dropping event, aggregation has stopped", "event", evt.Name)
		return
	}

	err := c.agg.Process(evt)
	state := c.agg.State()
	c.trackGroup(evt, state)

	var ie *InfraError
	if err != nil {
		if Classify(err).Fatal() {
			e := c.abortLocked(err)
			ie = &e
		} else {
			// The result was still emitted; the stream itself is intact.
			e := c.recordInfraErrorLocked(err, state)
			ie = &e
		}
	}
	pending, sinks := c.takePendingLocked()
	c.mu.Unlock()

	c.dispatch(pending, sinks)
	c.emit(NewProgressEvent(c.invocationID, state))
	if ie != nil {
		c.emit(NewInfraErrorEvent(c.invocationID, *ie))
	}
}

// trackGroup registers modules and the runs announced for them.
// Must be called with c.mu held.
func (c *Collector) trackGroup(evt parser.Event, state ConnectionState) {
	switch p := evt.Payload.(type) {
	case parser.ModuleStarted:
		c.groupLocked(p.ModuleName)
	case parser.RunStarted:
		g := c.groupLocked(state.CurrentGroup)
		g.ExpectedTests += p.TestCount
		g.RunNames = append(g.RunNames, p.RunName)
	}
}

// record is the aggregator's sink. It runs with c.mu held.
func (c *Collector) record(r TestResult) {
	c.run.Results = append(c.run.Results, r)

	g := c.groupLocked(r.GroupName)
	g.Counts.Add(r.Status)
	if r.TestName != "" {
		g.TestOrder = append(g.TestOrder, r.TestName)
	}
	g.Elapsed += r.Elapsed

	c.pending = append(c.pending, r)
}

func (c *Collector) groupLocked(name string) *GroupResult {
	g, ok := c.run.Groups[name]
	if !ok {
		g = &GroupResult{
			Name:      name,
			RunNames:  make([]string, 0),
			TestOrder: make([]string, 0),
		}
		c.run.Groups[name] = g
		c.run.GroupOrder = append(c.run.GroupOrder, name)
	}
	return g
}

func (c *Collector) recordInfraErrorLocked(err error, state ConnectionState) InfraError {
	ie := InfraError{
		Time:  time.Now(),
		Err:   err,
		Group: state.CurrentGroup,
		Test:  state.CurrentTest,
	}
	c.run.InfraErrors = append(c.run.InfraErrors, ie)
	c.log.Error("Test infrastructure error", "err", err, "module", ie.Group, "test", ie.Test)
	return ie
}

// abortLocked records err and stops aggregation.
func (c *Collector) abortLocked(err error) InfraError {
	ie := c.recordInfraErrorLocked(err, c.agg.State())
	if !c.run.Aborted {
		c.log.Warn("Aborting aggregation", "err", err)
		c.run.Aborted = true
		c.err = err
	}
	return ie
}

func (c *Collector) takePendingLocked() ([]TestResult, []ResultSink) {
	pending := c.pending
	c.pending = nil
	return pending, append([]ResultSink(nil), c.sinks...)
}

// dispatch forwards results to sinks and subscribers. Must be called
// without c.mu held.
func (c *Collector) dispatch(pending []TestResult, sinks []ResultSink) {
	sink := Tee(sinks...)
	for _, r := range pending {
		sink.Accept(r)
		c.emit(NewResultEvent(c.invocationID, r))
	}
}

// Finish ends the invocation: open scopes left by a truncated stream are
// reported as an infrastructure error, subscribers receive EventFinished
// and their channels are closed. Calling Finish again is a no-op.
func (c *Collector) Finish() {
	c.mu.Lock()
	if c.run.Finished {
		c.mu.Unlock()
		return
	}
	var ie *InfraError
	if !c.run.Aborted {
		if err := c.agg.Finish(); err != nil {
			e := c.abortLocked(err)
			ie = &e
		}
	}
	c.run.LogAssociations = c.agg.LogAssociations()
	c.run.EndTime = time.Now()
	c.run.Finished = true
	pending, sinks := c.takePendingLocked()
	c.mu.Unlock()

	c.dispatch(pending, sinks)
	if ie != nil {
		c.emit(NewInfraErrorEvent(c.invocationID, *ie))
	}
	c.emit(NewFinishedEvent(c.invocationID))
	c.closeSubscribers()
}

// Err returns the error that aborted aggregation, if any.
func (c *Collector) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// InvocationID returns the ID of the run.
func (c *Collector) InvocationID() string {
	return c.invocationID
}

// Run returns a copy of the run that is safe to read without locking.
func (c *Collector) Run() *Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyRun(c.run)
}

// WithRun executes fn with the run while holding RLock.
// This ensures thread-safe access to the run and all nested structures
// for the entire duration of the callback.
func (c *Collector) WithRun(fn func(*Run)) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fn(c.run)
}

// State returns a copy of the aggregator's current state.
func (c *Collector) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agg.State()
}
