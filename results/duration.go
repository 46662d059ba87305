package results

import "fmt"

// FormatDuration formats a millisecond delta for display next to a result:
//
//	(999ms)  (1.250s)  (2m 3.000s)  (1h 0m 0.000s)
//
// Negative deltas are rejected by the aggregator before they get here.
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("(%dms)", ms)
	}
	hours := ms / 3600000
	minutes := ms % 3600000 / 60000
	seconds := ms % 60000 / 1000
	millis := ms % 1000

	switch {
	case ms < 60000:
		return fmt.Sprintf("(%d.%03ds)", seconds, millis)
	case ms < 3600000:
		return fmt.Sprintf("(%dm %d.%03ds)", minutes, seconds, millis)
	}
	return fmt.Sprintf("(%dh %dm %d.%03ds)", hours, minutes, seconds, millis)
}
