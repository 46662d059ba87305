package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ansel1/tfagg/parser"
)

// ErrEventsNotBalanced is matched by every ImbalanceError.
var ErrEventsNotBalanced = errors.New("events not balanced")

// ImbalanceError reports start/end events that don't nest.
type ImbalanceError struct {
	Open      parser.EventKind // Start event the end event was checked against; KindUnknown if none was open
	Got       parser.EventKind // End event received; KindUnknown when the stream was truncated
	Truncated bool             // Stream ended with scopes still open
}

func (e *ImbalanceError) Error() string {
	switch {
	case e.Truncated:
		return fmt.Sprintf("%v: stream ended with %s still open", ErrEventsNotBalanced, e.Open)
	case e.Open == parser.KindUnknown:
		return fmt.Sprintf("%v: %s with no open start event", ErrEventsNotBalanced, e.Got)
	}
	return fmt.Sprintf("%v: expected %s to close %s, got %s", ErrEventsNotBalanced, e.Open.EndKind(), e.Open, e.Got)
}

func (e *ImbalanceError) Unwrap() error {
	return ErrEventsNotBalanced
}

// TimingError reports a test whose end time precedes its start time.
type TimingError struct {
	Test      string
	StartTime int64
	EndTime   int64
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("test %s ended before it started (start_time=%d, end_time=%d)", e.Test, e.StartTime, e.EndTime)
}

// ErrorClass names the kind of problem an infrastructure error describes.
type ErrorClass string

const (
	ClassImbalance ErrorClass = "imbalance" // End event didn't close the open scope
	ClassTruncated ErrorClass = "truncated" // Stream ended with scopes open
	ClassTiming    ErrorClass = "timing"    // Test ended before it started
	ClassDecode    ErrorClass = "decode"    // Event data malformed or incomplete
	ClassStream    ErrorClass = "stream"    // Reading the stream failed
)

// Classify reports the class of an error returned by the aggregator, the
// parser or the engine. Errors it doesn't recognize are stream errors.
func Classify(err error) ErrorClass {
	var (
		imbalance *ImbalanceError
		timing    *TimingError
		missing   *parser.MissingFieldError
		badType   *parser.FieldTypeError
		syntax    *json.SyntaxError
		unmarshal *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &imbalance):
		if imbalance.Truncated {
			return ClassTruncated
		}
		return ClassImbalance
	case errors.Is(err, ErrEventsNotBalanced):
		return ClassImbalance
	case errors.As(err, &timing):
		return ClassTiming
	case errors.As(err, &missing), errors.As(err, &badType),
		errors.As(err, &syntax), errors.As(err, &unmarshal),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ClassDecode
	}
	return ClassStream
}

// Fatal reports whether err leaves the event stream unusable. Only timing
// errors leave the stack intact.
func (c ErrorClass) Fatal() bool {
	return c != ClassTiming
}
