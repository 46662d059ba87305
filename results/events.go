package results

// EventType identifies the type of event emitted by the Collector.
type EventType string

const (
	EventResult     EventType = "result"      // A TestResult was recorded
	EventProgress   EventType = "progress"    // A runner event changed the aggregation state
	EventRawOutput  EventType = "raw_output"  // Non-event runner output
	EventInfraError EventType = "infra_error" // The event stream is broken
	EventFinished   EventType = "finished"    // The invocation is over
)

// Event represents a high-level event emitted by the Collector.
type Event struct {
	Type       EventType
	RunID      string
	Result     TestResult      // For EventResult
	State      ConnectionState // For EventProgress
	RawLine    []byte          // For EventRawOutput
	InfraError InfraError      // For EventInfraError
}

// NewResultEvent creates a new Result event.
func NewResultEvent(runID string, r TestResult) Event {
	return Event{
		Type:   EventResult,
		RunID:  runID,
		Result: r,
	}
}

// NewProgressEvent creates a new Progress event.
func NewProgressEvent(runID string, state ConnectionState) Event {
	return Event{
		Type:  EventProgress,
		RunID: runID,
		State: state,
	}
}

// NewRawOutputEvent creates a new RawOutput event.
func NewRawOutputEvent(runID string, line []byte) Event {
	return Event{
		Type:    EventRawOutput,
		RunID:   runID,
		RawLine: line,
	}
}

func NewInfraErrorEvent(runID string, ie InfraError) Event {
	return Event{
		Type:       EventInfraError,
		RunID:      runID,
		InfraError: ie,
	}
}

// NewFinishedEvent creates a new Finished event.
func NewFinishedEvent(runID string) Event {
	return Event{
		Type:  EventFinished,
		RunID: runID,
	}
}
