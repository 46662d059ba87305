package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ansel1/tfagg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(events <-chan Event) []Event {
	var collected []Event
	for evt := range events {
		collected = append(collected, evt)
	}
	return collected
}

func TestEngine_Stream_ParsesEvents(t *testing.T) {
	input := `TEST_STARTED {"className":"com.example.FooTest","testName":"testBar","start_time":1000}
TEST_ENDED {"className":"com.example.FooTest","testName":"testBar","end_time":2500}`

	eng := NewEngine()
	collected := collect(eng.Stream(strings.NewReader(input)))

	// Should have 2 test events + 1 complete event
	require.Len(t, collected, 3)

	assert.Equal(t, EventTest, collected[0].Type)
	assert.Equal(t, parser.KindTestStarted, collected[0].Event.Kind)
	assert.Equal(t, "testBar", collected[0].Event.Payload.(parser.TestStarted).TestName)

	assert.Equal(t, EventTest, collected[1].Type)
	assert.Equal(t, parser.KindTestEnded, collected[1].Event.Kind)
	assert.Equal(t, int64(2500), collected[1].Event.Payload.(parser.TestEnded).EndTime)

	assert.Equal(t, EventComplete, collected[2].Type)
}

func TestEngine_Stream_HandlesNonEventLines(t *testing.T) {
	input := `08:15:02 I/TestInvocation: Starting invocation
TEST_MODULE_STARTED {"moduleName":"CtsFooTestCases"}
08:15:03 D/ModuleListener: something happened
TEST_MODULE_ENDED {}`

	eng := NewEngine()
	collected := collect(eng.Stream(strings.NewReader(input)))

	// Should have: 2 raw lines + 2 test events + 1 complete = 5 events
	require.Len(t, collected, 5)

	assert.Equal(t, EventRawLine, collected[0].Type)
	assert.Equal(t, "08:15:02 I/TestInvocation: Starting invocation", string(collected[0].RawLine))

	assert.Equal(t, EventTest, collected[1].Type)
	assert.Equal(t, parser.ModuleStarted{ModuleName: "CtsFooTestCases"}, collected[1].Event.Payload)

	assert.Equal(t, EventRawLine, collected[2].Type)

	assert.Equal(t, EventTest, collected[3].Type)
	assert.Equal(t, parser.KindModuleEnded, collected[3].Event.Kind)

	assert.Equal(t, EventComplete, collected[4].Type)
}

func TestEngine_Stream_UnknownNameWithTextBody(t *testing.T) {
	input := `TEST_MODULE_STARTED {"moduleName":"M"}
WARNING {device not ready}
TEST_MODULE_ENDED {}`

	collected := collect(NewEngine().Stream(strings.NewReader(input)))

	require.Len(t, collected, 4)
	assert.Equal(t, EventTest, collected[0].Type)
	assert.Equal(t, EventRawLine, collected[1].Type)
	assert.Equal(t, "WARNING {device not ready}", string(collected[1].RawLine))
	assert.Nil(t, collected[1].Error)
	assert.Equal(t, EventTest, collected[2].Type)
	assert.Equal(t, EventComplete, collected[3].Type)
}

func TestEngine_Stream_MalformedEvent(t *testing.T) {
	input := `TEST_STARTED {"className":"C","testName":"t"}
TEST_RUN_FAILED {"reason":`

	eng := NewEngine()
	collected := collect(eng.Stream(strings.NewReader(input)))

	require.Len(t, collected, 3)

	assert.Equal(t, EventError, collected[0].Type)
	var missing *parser.MissingFieldError
	require.ErrorAs(t, collected[0].Error, &missing)
	assert.Equal(t, "start_time", missing.Field)
	assert.Contains(t, string(collected[0].RawLine), "TEST_STARTED")

	assert.Equal(t, EventError, collected[1].Type)
	assert.Error(t, collected[1].Error)

	assert.Equal(t, EventComplete, collected[2].Type)
}

func TestEngine_Stream_WritesRawOutput(t *testing.T) {
	input := `plain line
TEST_MODULE_STARTED {"moduleName":"M"}`

	var rawBuf bytes.Buffer
	eng := NewEngine(WithRawOutput(&rawBuf))
	collect(eng.Stream(strings.NewReader(input)))

	output := rawBuf.String()
	assert.Contains(t, output, "plain line\n")
	assert.Contains(t, output, `TEST_MODULE_STARTED {"moduleName":"M"}`)
}

func TestEngine_Stream_BothRawAndEventOutput(t *testing.T) {
	input := `plain line
TEST_MODULE_STARTED {"moduleName":"M"}
TEST_STARTED {"className":"C"}`

	var rawBuf, eventBuf bytes.Buffer
	eng := NewEngine(
		WithRawOutput(&rawBuf),
		WithEventOutput(&eventBuf),
	)
	collect(eng.Stream(strings.NewReader(input)))

	rawOutput := rawBuf.String()
	assert.Contains(t, rawOutput, "plain line\n")
	assert.Contains(t, rawOutput, `TEST_MODULE_STARTED`)
	assert.Contains(t, rawOutput, `TEST_STARTED`)

	// Malformed event lines are not copied to the event file
	assert.Equal(t, "TEST_MODULE_STARTED {\"moduleName\":\"M\"}\n", eventBuf.String())
}

func TestEngine_Stream_EmptyInput(t *testing.T) {
	eng := NewEngine()
	collected := collect(eng.Stream(strings.NewReader("")))

	require.Len(t, collected, 1)
	assert.Equal(t, EventComplete, collected[0].Type)
}

func TestEngine_Stream_PreservesEventOrder(t *testing.T) {
	input := `TEST_STARTED {"className":"C","testName":"a","start_time":0}
TEST_ENDED {"className":"C","testName":"a","end_time":1}
TEST_STARTED {"className":"C","testName":"b","start_time":1}
TEST_ENDED {"className":"C","testName":"b","end_time":2}`

	eng := NewEngine()

	var kinds []string
	for evt := range eng.Stream(strings.NewReader(input)) {
		if evt.Type == EventTest {
			kinds = append(kinds, evt.Event.Name)
		}
	}

	require.Equal(t, []string{"TEST_STARTED", "TEST_ENDED", "TEST_STARTED", "TEST_ENDED"}, kinds)
}

// errReader simulates a reader that returns an error
type errReader struct{}

func (e errReader) Read(p []byte) (n int, err error) {
	return 0, errors.New("simulated read error")
}

func TestEngine_Stream_HandlesReadError(t *testing.T) {
	eng := NewEngine()
	collected := collect(eng.Stream(errReader{}))

	require.Len(t, collected, 2)
	assert.Equal(t, EventError, collected[0].Type)
	assert.Error(t, collected[0].Error)
	assert.Equal(t, EventComplete, collected[1].Type)
}

func TestEngine_Stream_CopiesLineBuffer(t *testing.T) {
	input := `line1
line2
line3`

	eng := NewEngine()

	var rawLines [][]byte
	for evt := range eng.Stream(strings.NewReader(input)) {
		if evt.Type == EventRawLine {
			rawLines = append(rawLines, evt.RawLine)
		}
	}

	require.Len(t, rawLines, 3)
	assert.Equal(t, "line1", string(rawLines[0]))
	assert.Equal(t, "line2", string(rawLines[1]))
	assert.Equal(t, "line3", string(rawLines[2]))
}

func TestEngine_Stream_LongTrace(t *testing.T) {
	trace := strings.Repeat("at com.example.Foo.bar(Foo.java:1)\\n", 5000)
	input := `TEST_FAILED {"className":"C","testName":"t","trace":"` + trace + `"}`
	require.Greater(t, len(input), 64*1024)

	eng := NewEngine()
	collected := collect(eng.Stream(strings.NewReader(input)))

	require.Len(t, collected, 2)
	require.Equal(t, EventTest, collected[0].Type)
	assert.Contains(t, collected[0].Event.Payload.(parser.TestFailed).Trace, "Foo.java:1")
}

func TestEngine_Stream_LineTooLong(t *testing.T) {
	eng := NewEngine(WithMaxLineSize(16))
	collected := collect(eng.Stream(strings.NewReader(strings.Repeat("x", 64))))

	require.Len(t, collected, 2)
	assert.Equal(t, EventError, collected[0].Type)
	assert.Equal(t, EventComplete, collected[1].Type)
}
