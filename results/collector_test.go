package results

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansel1/tfagg/engine"
	"github.com/ansel1/tfagg/parser"
)

func newTestCollector(opts ...CollectorOption) *Collector {
	opts = append([]CollectorOption{
		WithCollectorLogger(log.NewLogger(log.DiscardHandler())),
		WithInvocationID("inv-1"),
	}, opts...)
	return NewCollector(opts...)
}

func pushLines(t *testing.T, c *Collector, lines ...string) {
	t.Helper()
	for _, line := range lines {
		evt, err := parser.ParseLine([]byte(line))
		if errors.Is(err, parser.ErrNotEvent) {
			c.Push(engine.Event{Type: engine.EventRawLine, RawLine: []byte(line)})
			continue
		}
		if err != nil {
			c.Push(engine.Event{Type: engine.EventError, RawLine: []byte(line), Error: err})
			continue
		}
		c.Push(engine.Event{Type: engine.EventTest, Event: evt})
	}
}

var passingModule = []string{
	`TEST_MODULE_STARTED {"moduleName":"CtsFooTestCases"}`,
	`TEST_RUN_STARTED {"runName":"com.android.foo","testCount":3}`,
	`TEST_STARTED {"className":"FooTest","testName":"testA","start_time":0}`,
	`TEST_ENDED {"className":"FooTest","testName":"testA","end_time":100}`,
	`TEST_STARTED {"className":"FooTest","testName":"testB","start_time":100}`,
	`TEST_FAILED {"className":"FooTest","testName":"testB","trace":"java.lang.AssertionError"}`,
	`TEST_ENDED {"className":"FooTest","testName":"testB","end_time":1600}`,
	`TEST_STARTED {"className":"FooTest","testName":"testC","start_time":1600}`,
	`TEST_IGNORED {"className":"FooTest","testName":"testC"}`,
	`TEST_ENDED {"className":"FooTest","testName":"testC","end_time":1600}`,
	`TEST_RUN_ENDED {}`,
	`TEST_MODULE_ENDED {}`,
}

func TestCollector_RecordsGroups(t *testing.T) {
	c := newTestCollector(WithRunnerName("AtestTradefedTestRunner"))
	pushLines(t, c, passingModule...)
	c.Push(engine.Event{Type: engine.EventComplete})

	run := c.Run()
	assert.Equal(t, "inv-1", run.ID)
	assert.Equal(t, "AtestTradefedTestRunner", run.RunnerName)
	assert.True(t, run.Finished)
	assert.False(t, run.Aborted)
	assert.Empty(t, run.InfraErrors)
	require.NoError(t, c.Err())

	require.Len(t, run.Results, 3)
	assert.Equal(t, "AtestTradefedTestRunner", run.Results[0].RunnerName)

	require.Equal(t, []string{"CtsFooTestCases"}, run.GroupOrder)
	g := run.Groups["CtsFooTestCases"]
	assert.Equal(t, 3, g.ExpectedTests)
	assert.Equal(t, []string{"com.android.foo"}, g.RunNames)
	assert.Equal(t, Counts{Passed: 1, Failed: 1, Ignored: 1}, g.Counts)
	assert.Equal(t, []string{"FooTest#testA", "FooTest#testB", "FooTest#testC"}, g.TestOrder)
	assert.Equal(t, int64(1600), g.Elapsed.Milliseconds())
	assert.Equal(t, StatusFailed, g.Status())

	assert.Equal(t, Counts{Passed: 1, Failed: 1, Ignored: 1}, run.Counts())
}

func TestCollector_ForwardsToSinks(t *testing.T) {
	early, late := &recorder{}, &recorder{}
	c := newTestCollector(WithSink(early))
	c.AddSink(late)

	pushLines(t, c, passingModule...)
	c.Finish()

	assert.Len(t, early.results, 3)
	assert.Len(t, late.results, 3)
	assert.Equal(t, StatusFailed, late.results[1].Status)
}

func TestCollector_ImbalanceAbortsAggregation(t *testing.T) {
	c := newTestCollector()
	pushLines(t, c,
		`TEST_MODULE_STARTED {"moduleName":"M"}`,
		`TEST_RUN_STARTED {"runName":"R","testCount":2}`,
		`TEST_STARTED {"className":"C","testName":"t","start_time":0}`,
		`TEST_FAILED {"className":"C","testName":"t","trace":"crash"}`,
		`TEST_RUN_ENDED {}`,
		// Everything after the imbalance is dropped
		`TEST_STARTED {"className":"C","testName":"u","start_time":0}`,
		`TEST_ENDED {"className":"C","testName":"u","end_time":1}`,
	)
	c.Finish()

	run := c.Run()
	assert.True(t, run.Aborted)
	require.ErrorIs(t, c.Err(), ErrEventsNotBalanced)

	// Salvaged failure only
	require.Len(t, run.Results, 1)
	assert.Equal(t, StatusFailed, run.Results[0].Status)
	assert.Equal(t, "crash", run.Results[0].Details)

	require.Len(t, run.InfraErrors, 1)
	assert.Equal(t, "M", run.InfraErrors[0].Group)
	assert.ErrorIs(t, run.InfraErrors[0].Err, ErrEventsNotBalanced)
}

func TestCollector_TruncatedStream(t *testing.T) {
	c := newTestCollector()
	pushLines(t, c,
		`TEST_MODULE_STARTED {"moduleName":"M"}`,
		`TEST_RUN_STARTED {"runName":"R","testCount":2}`,
		`TEST_STARTED {"className":"C","testName":"t","start_time":0}`,
	)
	c.Finish()

	run := c.Run()
	assert.True(t, run.Aborted)
	var imbalance *ImbalanceError
	require.ErrorAs(t, c.Err(), &imbalance)
	assert.True(t, imbalance.Truncated)
	require.Len(t, run.InfraErrors, 1)
	assert.Equal(t, "C#t", run.InfraErrors[0].Test)
	assert.Empty(t, run.Results)
}

func TestCollector_MalformedEventAborts(t *testing.T) {
	c := newTestCollector()
	pushLines(t, c,
		`TEST_MODULE_STARTED {"moduleName":"M"}`,
		`TEST_RUN_STARTED {"runName":"R"}`,
		`TEST_MODULE_ENDED {}`,
	)
	c.Finish()

	var missing *parser.MissingFieldError
	require.ErrorAs(t, c.Err(), &missing)
	assert.Equal(t, "testCount", missing.Field)
	assert.Equal(t, ClassDecode, Classify(c.Err()))
	// Finish doesn't add a second error for the scopes left open
	assert.Len(t, c.Run().InfraErrors, 1)
}

func TestCollector_TimingErrorDoesNotAbort(t *testing.T) {
	c := newTestCollector()
	pushLines(t, c,
		`TEST_STARTED {"className":"C","testName":"t","start_time":500}`,
		`TEST_ENDED {"className":"C","testName":"t","end_time":100}`,
		`TEST_STARTED {"className":"C","testName":"u","start_time":500}`,
		`TEST_ENDED {"className":"C","testName":"u","end_time":600}`,
	)
	c.Finish()

	run := c.Run()
	assert.False(t, run.Aborted)
	assert.NoError(t, c.Err())
	require.Len(t, run.InfraErrors, 1)
	require.Len(t, run.Results, 2)
	assert.Empty(t, run.Results[0].TestTime)
	assert.Equal(t, "(100ms)", run.Results[1].TestTime)
}

func TestCollector_Subscribe(t *testing.T) {
	c := newTestCollector()
	sub := c.Subscribe()

	pushLines(t, c,
		"runner says hello",
		`TEST_STARTED {"className":"C","testName":"t","start_time":0}`,
		`TEST_ENDED {"className":"C","testName":"t","end_time":1}`,
	)
	c.Finish()

	var types []EventType
	var last ConnectionState
	for evt := range sub {
		types = append(types, evt.Type)
		assert.Equal(t, "inv-1", evt.RunID)
		if evt.Type == EventProgress {
			last = evt.State
		}
	}

	assert.Equal(t, []EventType{
		EventRawOutput,
		EventProgress,
		EventResult,
		EventProgress,
		EventFinished,
	}, types)
	assert.Equal(t, "C#t", last.CurrentTest)
	assert.Equal(t, 1, last.TestCount)
}

func TestCollector_SubscribeAfterFinish(t *testing.T) {
	c := newTestCollector()
	c.Finish()
	c.Finish()

	_, ok := <-c.Subscribe()
	assert.False(t, ok)

	// Pushing after finish must not panic on closed channels
	c.Push(engine.Event{Type: engine.EventRawLine, RawLine: []byte("late")})
}

func TestCollector_ProcessEventsFromEngine(t *testing.T) {
	input := strings.Join(append([]string{"tradefed banner"}, passingModule...), "\n")

	c := newTestCollector()
	c.ProcessEvents(engine.NewEngine().Stream(strings.NewReader(input)))

	run := c.Run()
	assert.True(t, run.Finished)
	assert.Len(t, run.Results, 3)
}

func TestCollector_RunnerLogLinesDoNotAbort(t *testing.T) {
	input := strings.Join([]string{
		`TEST_MODULE_STARTED {"moduleName":"M"}`,
		`WARNING {device not ready}`,
		`DEVICE_STATE {"state":"online"}`,
		`TEST_RUN_STARTED {"runName":"R","testCount":1}`,
		`TEST_STARTED {"className":"C","testName":"t","start_time":0}`,
		`TEST_ENDED {"className":"C","testName":"t","end_time":5}`,
		`TEST_RUN_ENDED {}`,
		`TEST_MODULE_ENDED {}`,
	}, "\n")

	c := newTestCollector()
	c.ProcessEvents(engine.NewEngine().Stream(strings.NewReader(input)))

	run := c.Run()
	assert.False(t, run.Aborted)
	assert.Empty(t, run.InfraErrors)
	assert.NoError(t, c.Err())
	require.Len(t, run.Results, 1)
	assert.Equal(t, "C#t", run.Results[0].TestName)
	assert.Equal(t, StatusPassed, run.Results[0].Status)
}

func TestCollector_RunCopyIsIndependent(t *testing.T) {
	c := newTestCollector()
	pushLines(t, c, passingModule[:4]...)

	snapshot := c.Run()
	snapshot.Groups["CtsFooTestCases"].Counts.Passed = 99
	snapshot.Results[0].Status = StatusError

	c.WithRun(func(run *Run) {
		assert.Equal(t, 1, run.Groups["CtsFooTestCases"].Counts.Passed)
		assert.Equal(t, StatusPassed, run.Results[0].Status)
	})
	assert.Equal(t, "FooTest#testA", c.State().CurrentTest)
}

func TestCollector_RunCopyDuplicatesNestedData(t *testing.T) {
	c := newTestCollector()
	pushLines(t, c,
		`TEST_MODULE_STARTED {"moduleName":"M"}`,
		`TEST_RUN_STARTED {"runName":"R","testCount":1}`,
		`TEST_STARTED {"className":"C","testName":"t","start_time":0}`,
		`TEST_ENDED {"className":"C","testName":"t","end_time":5,"metrics":{"cpu":"1"},"tags":["a"]}`,
		`LOG_ASSOCIATION {"dataName":"logcat","loggedFile":{"path":"/tmp/logcat.txt"}}`,
		`TEST_RUN_ENDED {}`,
		`TEST_MODULE_ENDED {}`,
	)
	c.Finish()

	snapshot := c.Run()
	res := snapshot.Results[0]
	require.NotNil(t, res.GroupTotal)
	*res.GroupTotal = 42
	res.AdditionalInfo["metrics"].(map[string]any)["cpu"] = "99"
	res.AdditionalInfo["tags"].([]any)[0] = "z"
	res.AdditionalInfo["added"] = true
	snapshot.LogAssociations[0].LoggedFile["path"] = "/elsewhere"

	c.WithRun(func(run *Run) {
		live := run.Results[0]
		assert.Equal(t, 1, *live.GroupTotal)
		assert.Equal(t, "1", live.AdditionalInfo["metrics"].(map[string]any)["cpu"])
		assert.Equal(t, "a", live.AdditionalInfo["tags"].([]any)[0])
		assert.NotContains(t, live.AdditionalInfo, "added")
		assert.Equal(t, "/tmp/logcat.txt", run.LogAssociations[0].LoggedFile["path"])
	})
}

func TestCollector_LogAssociations(t *testing.T) {
	c := newTestCollector()
	pushLines(t, c, `LOG_ASSOCIATION {"dataName":"host_log","loggedFile":{"path":"/tmp/host_log.txt"}}`)
	c.Finish()

	run := c.Run()
	require.Len(t, run.LogAssociations, 1)
	assert.Equal(t, "host_log", run.LogAssociations[0].DataName)
}
