package results

import "testing"

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"zero", 0, "(0ms)"},
		{"just under a second", 999, "(999ms)"},
		{"one second", 1000, "(1.000s)"},
		{"seconds with millis", 1250, "(1.250s)"},
		{"just under a minute", 59999, "(59.999s)"},
		{"one minute", 60000, "(1m 0.000s)"},
		{"minutes and seconds", 123456, "(2m 3.456s)"},
		{"just under an hour", 3599999, "(59m 59.999s)"},
		{"one hour", 3600000, "(1h 0m 0.000s)"},
		{"hours minutes seconds", 3723004, "(1h 2m 3.004s)"},
		{"over a day", 90061001, "(25h 1m 1.001s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.ms); got != tt.want {
				t.Errorf("FormatDuration(%d) = %s, want %s", tt.ms, got, tt.want)
			}
		})
	}
}
