package results

import (
	"time"

	"github.com/ansel1/tfagg/parser"
)

// Status is the terminal outcome of a test, run or invocation.
type Status string

const (
	StatusPassed           Status = "PASSED"
	StatusFailed           Status = "FAILED"
	StatusError            Status = "ERROR"
	StatusIgnored          Status = "IGNORED"
	StatusAssumptionFailed Status = "ASSUMPTION_FAILED"
)

// IsFailure reports whether the status should fail the invocation.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusError
}

// TestResult is the normalized record emitted for one test, or for a run or
// invocation that failed as a whole.
type TestResult struct {
	RunnerName     string
	GroupName      string // Module name
	TestName       string // "ClassName#testName"; empty for invocation-level errors
	Status         Status
	Details        string // Failure trace or error reason
	TestCount      int    // Running count of tests started in the current run
	TestTime       string // Formatted duration, e.g. "(1.250s)"
	Elapsed        time.Duration
	RunnerTotal    *int
	GroupTotal     *int // Expected test count announced by the run
	AdditionalInfo map[string]any
	TestRunName    string
	RunAttempt     int
}

// Failure is a sticky failure captured by TEST_FAILED.
type Failure struct {
	Name  string
	Trace string
}

// ConnectionState is the aggregation state carried between events of one
// runner invocation.
type ConnectionState struct {
	CurrentTest          string
	TestRunName          string
	LastFailed           *Failure
	LastIgnored          string
	LastAssumptionFailed string
	CurrentGroup         string
	CurrentGroupTotal    *int
	TestCount            int
	TestStartTime        *int64 // Milliseconds, from TEST_STARTED
	RunAttempt           int
}

// clone returns a deep copy safe to hand to other goroutines.
func (s ConnectionState) clone() ConnectionState {
	c := s
	if s.LastFailed != nil {
		f := *s.LastFailed
		c.LastFailed = &f
	}
	if s.CurrentGroupTotal != nil {
		n := *s.CurrentGroupTotal
		c.CurrentGroupTotal = &n
	}
	if s.TestStartTime != nil {
		n := *s.TestStartTime
		c.TestStartTime = &n
	}
	return c
}

// Counts aggregates result statuses.
type Counts struct {
	Passed           int
	Failed           int
	Errors           int
	Ignored          int
	AssumptionFailed int
}

// Add counts one status.
func (c *Counts) Add(s Status) {
	switch s {
	case StatusPassed:
		c.Passed++
	case StatusFailed:
		c.Failed++
	case StatusError:
		c.Errors++
	case StatusIgnored:
		c.Ignored++
	case StatusAssumptionFailed:
		c.AssumptionFailed++
	}
}

// Total returns the number of counted results.
func (c Counts) Total() int {
	return c.Passed + c.Failed + c.Errors + c.Ignored + c.AssumptionFailed
}

// GroupResult aggregates the results of one module.
type GroupResult struct {
	Name          string
	ExpectedTests int      // Sum of testCount over the module's runs
	RunNames      []string // Chronological order of run names
	Counts        Counts
	TestOrder     []string // Chronological order of results
	Elapsed       time.Duration
}

// Status derives the module status from its counts.
func (g *GroupResult) Status() Status {
	switch {
	case g.Counts.Errors > 0:
		return StatusError
	case g.Counts.Failed > 0:
		return StatusFailed
	case g.Counts.Passed == 0 && g.Counts.Total() > 0:
		return StatusIgnored
	}
	return StatusPassed
}

// InfraError is a test infrastructure problem: a malformed or truncated
// event stream. It is reported apart from test failures.
type InfraError struct {
	Time  time.Time
	Err   error
	Group string // Module open when the error occurred
	Test  string // Test open when the error occurred
}

// Run holds everything aggregated from one runner invocation.
type Run struct {
	ID              string // Invocation ID
	RunnerName      string
	Groups          map[string]*GroupResult
	GroupOrder      []string
	Results         []TestResult
	InfraErrors     []InfraError
	LogAssociations []parser.LogAssociation
	StartTime       time.Time
	EndTime         time.Time
	Aborted         bool // Aggregation stopped on an infrastructure error
	Finished        bool
}

// NewRun creates a new run.
func NewRun(id, runnerName string) *Run {
	return &Run{
		ID:          id,
		RunnerName:  runnerName,
		Groups:      make(map[string]*GroupResult),
		GroupOrder:  make([]string, 0),
		Results:     make([]TestResult, 0),
		InfraErrors: make([]InfraError, 0),
		StartTime:   time.Now(),
	}
}

// Counts totals all results of the run.
func (r *Run) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		c.Add(res.Status)
	}
	return c
}

// copyRun returns a deep copy of r. Results, their extra data and totals,
// groups and log associations are all duplicated; only the errors held by
// InfraErrors are shared, and those are immutable.
func copyRun(r *Run) *Run {
	c := *r
	c.Groups = make(map[string]*GroupResult, len(r.Groups))
	for name, g := range r.Groups {
		gc := *g
		gc.RunNames = append([]string(nil), g.RunNames...)
		gc.TestOrder = append([]string(nil), g.TestOrder...)
		c.Groups[name] = &gc
	}
	c.GroupOrder = append([]string(nil), r.GroupOrder...)
	c.Results = make([]TestResult, len(r.Results))
	for i, res := range r.Results {
		c.Results[i] = copyResult(res)
	}
	c.InfraErrors = append([]InfraError(nil), r.InfraErrors...)
	c.LogAssociations = make([]parser.LogAssociation, len(r.LogAssociations))
	for i, la := range r.LogAssociations {
		la.LoggedFile = copyMap(la.LoggedFile)
		c.LogAssociations[i] = la
	}
	return &c
}

func copyResult(r TestResult) TestResult {
	r.RunnerTotal = copyInt(r.RunnerTotal)
	r.GroupTotal = copyInt(r.GroupTotal)
	r.AdditionalInfo = copyMap(r.AdditionalInfo)
	return r
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// copyMap copies decoded JSON data, including nested objects and arrays.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}
