package format

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansel1/tfagg/results"
)

func testRun() *results.Run {
	run := results.NewRun("inv", "TradefedTestRunner")
	run.StartTime = time.Unix(0, 0)
	run.EndTime = run.StartTime.Add(90 * time.Second)

	add := func(group string, expected int, rs ...results.TestResult) {
		g := &results.GroupResult{Name: group, ExpectedTests: expected}
		for _, r := range rs {
			r.GroupName = group
			g.Counts.Add(r.Status)
			g.Elapsed += r.Elapsed
			if r.TestName != "" {
				g.TestOrder = append(g.TestOrder, r.TestName)
			}
			run.Results = append(run.Results, r)
		}
		run.Groups[group] = g
		run.GroupOrder = append(run.GroupOrder, group)
	}

	add("CtsFooTestCases", 3,
		results.TestResult{TestName: "Foo#a", Status: results.StatusPassed, TestTime: "(12.000s)", Elapsed: 12 * time.Second},
		results.TestResult{TestName: "Foo#b", Status: results.StatusFailed, TestTime: "(1.000s)", Elapsed: time.Second, Details: "boom"},
		results.TestResult{TestName: "Foo#c", Status: results.StatusIgnored, TestTime: "(0ms)"},
	)
	add("CtsBarTestCases", 2,
		results.TestResult{TestName: "Bar#a", Status: results.StatusPassed, TestTime: "(30.000s)", Elapsed: 30 * time.Second},
		results.TestResult{TestName: "Bar#b", Status: results.StatusAssumptionFailed, TestTime: "(5ms)", Elapsed: 5 * time.Millisecond},
		results.TestResult{Status: results.StatusError, Details: "instrumentation crashed", TestRunName: "bar"},
	)
	run.InfraErrors = append(run.InfraErrors, results.InfraError{Err: errors.New("stream broke"), Group: "CtsBarTestCases"})
	return run
}

func TestComputeSummary(t *testing.T) {
	s := ComputeSummary(testRun(), 10*time.Second)

	assert.Equal(t, "TradefedTestRunner", s.RunnerName)
	assert.Equal(t, 6, s.TotalTests)
	assert.Equal(t, results.Counts{Passed: 2, Failed: 1, Errors: 1, Ignored: 1, AssumptionFailed: 1}, s.Counts)
	assert.Equal(t, 2, s.ModuleCount)
	assert.Equal(t, 90*time.Second, s.TotalTime)

	require.Len(t, s.Modules, 2)
	assert.Equal(t, "CtsFooTestCases", s.Modules[0].Name)

	require.Len(t, s.Failures, 1)
	assert.Equal(t, "Foo#b", s.Failures[0].TestName)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "instrumentation crashed", s.Errors[0].Details)
	assert.Len(t, s.Ignored, 1)
	assert.Len(t, s.AssumptionFailures, 1)
	assert.Len(t, s.InfraErrors, 1)

	require.Len(t, s.SlowTests, 2)
	assert.Equal(t, "Bar#a", s.SlowTests[0].TestName)
	assert.Equal(t, "Foo#a", s.SlowTests[1].TestName)

	assert.Equal(t, "CtsBarTestCases", s.SlowestModule.Name)
	assert.Equal(t, "CtsFooTestCases", s.MostTestsModule.Name)
}

func TestComputeSummaryNoSlowThreshold(t *testing.T) {
	s := ComputeSummary(testRun(), 0)
	assert.Empty(t, s.SlowTests)
}

func TestComputeSummaryEmptyRun(t *testing.T) {
	s := ComputeSummary(results.NewRun("inv", "R"), time.Second)
	assert.Equal(t, 0, s.TotalTests)
	assert.Empty(t, s.Modules)
	assert.Nil(t, s.SlowestModule)
	assert.Nil(t, s.MostTestsModule)
	assert.GreaterOrEqual(t, s.TotalTime, time.Duration(0))
}
