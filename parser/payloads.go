package parser

import (
	"encoding/json"
	"math"
	"strconv"
)

// Payload is the typed data of one event kind.
type Payload interface {
	Kind() EventKind
}

type ModuleStarted struct {
	ModuleName string
}

type ModuleEnded struct{}

type RunStarted struct {
	RunName    string
	TestCount  int
	RunAttempt int
}

type RunEnded struct{}

// TestStarted opens a test scope. StartTime is in milliseconds.
type TestStarted struct {
	ClassName string
	TestName  string
	StartTime int64
}

type TestFailed struct {
	ClassName string
	TestName  string
	Trace     string
}

type TestIgnored struct {
	ClassName string
	TestName  string
}

type TestAssumptionFailure struct {
	ClassName string
	TestName  string
	Trace     string
}

// TestEnded closes a test scope. EndTime is in milliseconds; Extra holds
// every data key other than className, end_time and testName.
type TestEnded struct {
	ClassName string
	TestName  string
	EndTime   int64
	Extra     map[string]any
}

type RunFailed struct {
	Reason string
}

type InvocationFailed struct {
	Cause string
}

// LogAssociation links a log file produced by the runner to the current scope.
type LogAssociation struct {
	DataName   string
	LoggedFile map[string]any
}

// Unknown carries events whose name isn't part of the recognized vocabulary.
type Unknown struct {
	Name string
	Data map[string]any
}

func (ModuleStarted) Kind() EventKind         { return KindModuleStarted }
func (ModuleEnded) Kind() EventKind           { return KindModuleEnded }
func (RunStarted) Kind() EventKind            { return KindRunStarted }
func (RunEnded) Kind() EventKind              { return KindRunEnded }
func (TestStarted) Kind() EventKind           { return KindTestStarted }
func (TestFailed) Kind() EventKind            { return KindTestFailed }
func (TestIgnored) Kind() EventKind           { return KindTestIgnored }
func (TestAssumptionFailure) Kind() EventKind { return KindTestAssumptionFailure }
func (TestEnded) Kind() EventKind             { return KindTestEnded }
func (RunFailed) Kind() EventKind             { return KindRunFailed }
func (InvocationFailed) Kind() EventKind      { return KindInvocationFailed }
func (LogAssociation) Kind() EventKind        { return KindLogAssociation }
func (Unknown) Kind() EventKind               { return KindUnknown }

// QualifiedName returns "ClassName#testName".
func (p TestStarted) QualifiedName() string { return TestName(p.ClassName, p.TestName) }

// QualifiedName returns "ClassName#testName".
func (p TestFailed) QualifiedName() string { return TestName(p.ClassName, p.TestName) }

// QualifiedName returns "ClassName#testName".
func (p TestIgnored) QualifiedName() string { return TestName(p.ClassName, p.TestName) }

// QualifiedName returns "ClassName#testName".
func (p TestAssumptionFailure) QualifiedName() string { return TestName(p.ClassName, p.TestName) }

// QualifiedName returns "ClassName#testName".
func (p TestEnded) QualifiedName() string { return TestName(p.ClassName, p.TestName) }

var testEndedKeys = map[string]bool{
	"className": true,
	"end_time":  true,
	"testName":  true,
}

func extraFields(data map[string]any) map[string]any {
	extra := make(map[string]any)
	for k, v := range data {
		if !testEndedKeys[k] {
			extra[k] = v
		}
	}
	return extra
}

// fields reads typed values out of an event's data, keeping the first error.
type fields struct {
	event string
	data  map[string]any
	err   error
}

func (f *fields) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *fields) str(key string) string {
	v, ok := f.data[key]
	if !ok {
		f.fail(&MissingFieldError{Event: f.event, Field: key})
		return ""
	}
	s, ok := v.(string)
	if !ok {
		f.fail(&FieldTypeError{Event: f.event, Field: key, Want: "string", Value: v})
	}
	return s
}

func (f *fields) optStr(key string) string {
	if _, ok := f.data[key]; !ok {
		return ""
	}
	return f.str(key)
}

func (f *fields) int(key string) int64 {
	v, ok := f.data[key]
	if !ok {
		f.fail(&MissingFieldError{Event: f.event, Field: key})
		return 0
	}
	n, ok := toInt64(v)
	if !ok {
		f.fail(&FieldTypeError{Event: f.event, Field: key, Want: "integer", Value: v})
	}
	return n
}

func (f *fields) optInt(key string) int64 {
	if _, ok := f.data[key]; !ok {
		return 0
	}
	return f.int(key)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		// Some runners write epoch millis as floats ("1700000000000.0").
		fl, err := strconv.ParseFloat(string(n), 64)
		if err != nil || fl != math.Trunc(fl) {
			return 0, false
		}
		return int64(fl), true
	}
	return 0, false
}
