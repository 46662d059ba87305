// Package exitcodes defines the exit codes used by tfagg.
package exitcodes

// Exit code constants used by tfagg
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Every test passed or was ignored
// * TestFailure (1): One or more tests failed or errored
// * RuntimeErr (2): Bad flags, unreadable input or config, output errors
// * InfraErr (3): The runner's event stream was malformed or truncated
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
	InfraErr    = 3 // Broken event stream
)
