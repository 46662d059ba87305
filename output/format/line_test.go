package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ansel1/tfagg/results"
)

func intPtr(n int) *int { return &n }

func TestResultLine(t *testing.T) {
	tests := []struct {
		name string
		in   results.TestResult
		want string
	}{
		{
			name: "with total",
			in: results.TestResult{
				GroupName: "CtsFooTestCases", TestName: "FooTest#testA",
				Status: results.StatusPassed, TestCount: 2, GroupTotal: intPtr(5), TestTime: "(12ms)",
			},
			want: "[2/5] CtsFooTestCases FooTest#testA: PASSED (12ms)",
		},
		{
			name: "unknown total",
			in: results.TestResult{
				GroupName: "M", TestName: "C#t",
				Status: results.StatusFailed, TestCount: 1, TestTime: "(1.250s)",
			},
			want: "[1] M C#t: FAILED (1.250s)",
		},
		{
			name: "no module",
			in: results.TestResult{
				TestName: "C#t", Status: results.StatusIgnored, TestCount: 1, TestTime: "(0ms)",
			},
			want: "[1] C#t: IGNORED (0ms)",
		},
		{
			name: "invocation error",
			in: results.TestResult{
				RunnerName: "TradefedTestRunner", Status: results.StatusError, Details: "device offline",
			},
			want: "TradefedTestRunner: ERROR",
		},
		{
			name: "timing unavailable",
			in: results.TestResult{
				GroupName: "M", TestName: "C#t", Status: results.StatusPassed, TestCount: 3, GroupTotal: intPtr(3),
			},
			want: "[3/3] M C#t: PASSED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultLine(tt.in))
		})
	}
}

func TestDetailLines(t *testing.T) {
	assert.Nil(t, DetailLines("", 10))
	assert.Nil(t, DetailLines("\n\n", 10))

	got := DetailLines("java.lang.AssertionError\n\tat Foo.test(Foo.java:10)\n", 0)
	assert.Equal(t, []string{
		"    java.lang.AssertionError",
		"            at Foo.test(Foo.java:10)",
	}, got)

	got = DetailLines("a\nb\nc\nd", 2)
	assert.Equal(t, []string{"    a", "    b", "    ... 2 more lines"}, got)
}

func TestExpandTabs(t *testing.T) {
	assert.Equal(t, "ab      c", expandTabs("ab\tc", 8))
	assert.Equal(t, "x\n        y", expandTabs("x\n\ty", 8))
}
