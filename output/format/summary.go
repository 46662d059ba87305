package format

import (
	"cmp"
	"slices"
	"time"

	"github.com/ansel1/tfagg/results"
)

// Summary represents computed summary statistics from a Run.
type Summary struct {
	RunnerName  string
	Modules     []*results.GroupResult
	Counts      results.Counts
	TotalTests  int
	TotalTime   time.Duration
	ModuleCount int
	Aborted     bool

	Failures           []results.TestResult
	Errors             []results.TestResult
	Ignored            []results.TestResult
	AssumptionFailures []results.TestResult
	SlowTests          []results.TestResult
	SlowThreshold      time.Duration
	InfraErrors        []results.InfraError

	SlowestModule   *results.GroupResult
	MostTestsModule *results.GroupResult
	LogAssociations int
}

// ComputeSummary calculates summary statistics from a Run.
//
// Tests whose elapsed time is at least slowThreshold are listed as slow,
// slowest first. A threshold of zero disables slow test detection.
func ComputeSummary(run *results.Run, slowThreshold time.Duration) *Summary {
	endTime := run.EndTime
	if endTime.IsZero() {
		endTime = time.Now()
	}

	summary := &Summary{
		RunnerName:      run.RunnerName,
		ModuleCount:     len(run.GroupOrder),
		TotalTime:       endTime.Sub(run.StartTime),
		Aborted:         run.Aborted,
		SlowThreshold:   slowThreshold,
		InfraErrors:     run.InfraErrors,
		LogAssociations: len(run.LogAssociations),
	}

	// Modules in the order they started
	modules := make([]*results.GroupResult, 0, len(run.GroupOrder))
	for _, name := range run.GroupOrder {
		if g, exists := run.Groups[name]; exists {
			modules = append(modules, g)
		}
	}
	summary.Modules = modules

	for _, r := range run.Results {
		summary.Counts.Add(r.Status)
		switch r.Status {
		case results.StatusFailed:
			summary.Failures = append(summary.Failures, r)
		case results.StatusError:
			summary.Errors = append(summary.Errors, r)
		case results.StatusIgnored:
			summary.Ignored = append(summary.Ignored, r)
		case results.StatusAssumptionFailed:
			summary.AssumptionFailures = append(summary.AssumptionFailures, r)
		}

		if slowThreshold > 0 && r.TestName != "" && r.TestTime != "" && r.Elapsed >= slowThreshold {
			summary.SlowTests = append(summary.SlowTests, r)
		}
	}
	summary.TotalTests = summary.Counts.Total()

	slices.SortStableFunc(summary.SlowTests, func(a, b results.TestResult) int {
		return cmp.Compare(b.Elapsed, a.Elapsed)
	})

	for _, g := range modules {
		if summary.SlowestModule == nil || g.Elapsed > summary.SlowestModule.Elapsed {
			summary.SlowestModule = g
		}
		if summary.MostTestsModule == nil || g.Counts.Total() > summary.MostTestsModule.Counts.Total() {
			summary.MostTestsModule = g
		}
	}

	return summary
}
