package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind identifies one of the lifecycle events a test runner emits.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindModuleStarted
	KindModuleEnded
	KindRunStarted
	KindRunEnded
	KindTestStarted
	KindTestFailed
	KindTestEnded
	KindRunFailed
	KindInvocationFailed
	KindTestIgnored
	KindTestAssumptionFailure
	KindLogAssociation
)

var kindNames = map[EventKind]string{
	KindModuleStarted:         "TEST_MODULE_STARTED",
	KindModuleEnded:           "TEST_MODULE_ENDED",
	KindRunStarted:            "TEST_RUN_STARTED",
	KindRunEnded:              "TEST_RUN_ENDED",
	KindTestStarted:           "TEST_STARTED",
	KindTestFailed:            "TEST_FAILED",
	KindTestEnded:             "TEST_ENDED",
	KindRunFailed:             "TEST_RUN_FAILED",
	KindInvocationFailed:      "INVOCATION_FAILED",
	KindTestIgnored:           "TEST_IGNORED",
	KindTestAssumptionFailure: "TEST_ASSUMPTION_FAILURE",
	KindLogAssociation:        "LOG_ASSOCIATION",
}

var kindsByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the wire name of the kind.
func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseKind maps a wire name to its kind. Unrecognized names map to KindUnknown.
func ParseKind(name string) EventKind {
	return kindsByName[name]
}

// IsStart reports whether the kind opens a scope.
func (k EventKind) IsStart() bool {
	return k.EndKind() != KindUnknown
}

// IsEnd reports whether the kind closes a scope.
func (k EventKind) IsEnd() bool {
	switch k {
	case KindModuleEnded, KindRunEnded, KindTestEnded:
		return true
	}
	return false
}

// EndKind returns the event kind that closes a start kind, or KindUnknown.
func (k EventKind) EndKind() EventKind {
	switch k {
	case KindModuleStarted:
		return KindModuleEnded
	case KindRunStarted:
		return KindRunEnded
	case KindTestStarted:
		return KindTestEnded
	}
	return KindUnknown
}

// Event is a single decoded lifecycle event.
type Event struct {
	Kind    EventKind
	Name    string         // Wire name as received
	Payload Payload        // Typed fields for Kind
	Data    map[string]any // Raw event data
}

// ErrNotEvent is returned by ParseLine for lines that are not event records.
var ErrNotEvent = errors.New("not an event line")

// MissingFieldError reports an event whose data lacks a required key.
type MissingFieldError struct {
	Event string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required field %q", e.Event, e.Field)
}

// FieldTypeError reports an event field holding a value of the wrong type.
type FieldTypeError struct {
	Event string
	Field string
	Want  string
	Value any
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("%s: field %q is %T, want %s", e.Event, e.Field, e.Value, e.Want)
}

// ParseLine parses a single "EVENT_NAME {json}" record.
//
// Lines that don't have that shape return ErrNotEvent, and so do lines
// with an unrecognized name whose body isn't a JSON object. Known events
// with invalid JSON or incomplete data return the decoding error.
func ParseLine(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	sp := bytes.IndexByte(line, ' ')
	if sp <= 0 || !isEventName(line[:sp]) {
		return Event{}, ErrNotEvent
	}
	body := bytes.TrimSpace(line[sp+1:])
	if len(body) == 0 || body[0] != '{' {
		return Event{}, ErrNotEvent
	}
	name := string(line[:sp])

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		if ParseKind(name) == KindUnknown {
			// e.g. "WARNING {device not ready}" from the runner's own logging
			return Event{}, ErrNotEvent
		}
		return Event{}, fmt.Errorf("decoding %s data: %w", name, err)
	}
	return Decode(name, data)
}

func isEventName(b []byte) bool {
	for _, c := range b {
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return len(b) > 0
}

// Decode builds a typed event from a wire name and its data mapping.
func Decode(name string, data map[string]any) (Event, error) {
	if data == nil {
		data = map[string]any{}
	}
	kind := ParseKind(name)
	evt := Event{Kind: kind, Name: name, Data: data}

	f := fields{event: name, data: data}
	switch kind {
	case KindModuleStarted:
		evt.Payload = ModuleStarted{ModuleName: f.str("moduleName")}
	case KindModuleEnded:
		evt.Payload = ModuleEnded{}
	case KindRunStarted:
		evt.Payload = RunStarted{
			RunName:    f.optStr("runName"),
			TestCount:  int(f.int("testCount")),
			RunAttempt: int(f.optInt("runAttempt")),
		}
	case KindRunEnded:
		evt.Payload = RunEnded{}
	case KindTestStarted:
		evt.Payload = TestStarted{
			ClassName: f.str("className"),
			TestName:  f.str("testName"),
			StartTime: f.int("start_time"),
		}
	case KindTestFailed:
		evt.Payload = TestFailed{
			ClassName: f.str("className"),
			TestName:  f.str("testName"),
			Trace:     f.str("trace"),
		}
	case KindTestIgnored:
		evt.Payload = TestIgnored{
			ClassName: f.str("className"),
			TestName:  f.str("testName"),
		}
	case KindTestAssumptionFailure:
		evt.Payload = TestAssumptionFailure{
			ClassName: f.str("className"),
			TestName:  f.str("testName"),
			Trace:     f.optStr("trace"),
		}
	case KindTestEnded:
		evt.Payload = TestEnded{
			ClassName: f.str("className"),
			TestName:  f.str("testName"),
			EndTime:   f.int("end_time"),
			Extra:     extraFields(data),
		}
	case KindRunFailed:
		evt.Payload = RunFailed{Reason: f.str("reason")}
	case KindInvocationFailed:
		evt.Payload = InvocationFailed{Cause: f.str("cause")}
	case KindLogAssociation:
		la := LogAssociation{DataName: f.optStr("dataName")}
		if lf, ok := data["loggedFile"].(map[string]any); ok {
			la.LoggedFile = lf
		}
		evt.Payload = la
	default:
		evt.Payload = Unknown{Name: name, Data: data}
	}

	if f.err != nil {
		return Event{}, f.err
	}
	return evt, nil
}

// TestName renders the fully qualified "ClassName#testName" form.
func TestName(className, testName string) string {
	return className + "#" + testName
}
