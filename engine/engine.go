package engine

import (
	"bufio"
	"errors"
	"io"

	"github.com/ansel1/tfagg/parser"
)

// EventType identifies the type of event emitted by the engine
type EventType string

const (
	EventRawLine  EventType = "raw"      // Non-event line from input
	EventTest     EventType = "test"     // Parsed runner event
	EventError    EventType = "error"    // Malformed event line or read error
	EventComplete EventType = "complete" // Input stream finished
)

// DefaultMaxLineSize bounds a single input line. Failure traces are
// embedded in event lines, so the bufio default of 64KiB is too small.
const DefaultMaxLineSize = 4 * 1024 * 1024

// Event represents a single event emitted by the engine
type Event struct {
	Type    EventType
	RawLine []byte       // Populated for EventRawLine and malformed EventError
	Event   parser.Event // Populated for EventTest
	Error   error        // Populated for EventError
}

// Engine processes raw input and broadcasts events
// It maintains no state about tests - just parses and streams events
type Engine struct {
	// Output writers for pass-through file writing
	rawWriter   io.Writer
	eventWriter io.Writer
	maxLineSize int
}

// Option configures the engine
type Option func(*Engine)

// WithRawOutput configures engine to write all raw lines to a file
func WithRawOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.rawWriter = w
	}
}

// WithEventOutput configures engine to write only the event lines to a file
func WithEventOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.eventWriter = w
	}
}

// WithMaxLineSize overrides DefaultMaxLineSize
func WithMaxLineSize(n int) Option {
	return func(e *Engine) {
		e.maxLineSize = n
	}
}

// NewEngine creates a new event processing engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{maxLineSize: DefaultMaxLineSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stream reads from input, parses lines, and emits events via channel.
// The last event is always EventComplete; the channel is closed after it.
func (e *Engine) Stream(input io.Reader) <-chan Event {
	events := make(chan Event, 100) // buffered channel for better throughput

	go func() {
		defer close(events)

		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, min(64*1024, e.maxLineSize)), e.maxLineSize)
		for scanner.Scan() {
			line := scanner.Bytes()

			// Always write raw output to file if configured
			if e.rawWriter != nil {
				e.rawWriter.Write(line)
				e.rawWriter.Write([]byte("\n"))
			}

			// Make a copy of the line since scanner reuses the buffer
			lineCopy := make([]byte, len(line))
			copy(lineCopy, line)

			evt, err := parser.ParseLine(lineCopy)
			if errors.Is(err, parser.ErrNotEvent) {
				events <- Event{
					Type:    EventRawLine,
					RawLine: lineCopy,
				}
				continue
			}
			if err != nil {
				events <- Event{
					Type:    EventError,
					RawLine: lineCopy,
					Error:   err,
				}
				continue
			}

			if e.eventWriter != nil {
				e.eventWriter.Write(line)
				e.eventWriter.Write([]byte("\n"))
			}

			events <- Event{
				Type:  EventTest,
				Event: evt,
			}
		}

		if err := scanner.Err(); err != nil {
			events <- Event{
				Type:  EventError,
				Error: err,
			}
		}

		events <- Event{
			Type: EventComplete,
		}
	}()

	return events
}
