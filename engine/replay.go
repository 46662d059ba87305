package engine

import (
	"bufio"
	"io"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/ansel1/tfagg/parser"
)

// lineWithTiming represents a line from the input with its associated timestamp
type lineWithTiming struct {
	line      []byte
	timestamp time.Time // zero when no timed event has been seen yet
}

// ReplayReader wraps an io.Reader and replays its content with timing delays
// based on the start_time/end_time fields of TEST_STARTED and TEST_ENDED.
type ReplayReader struct {
	lines         []lineWithTiming
	rate          float64
	clock         clock.Clock
	currentIdx    int
	lineBuffer    []byte
	bufferPos     int
	lastEventTime time.Time
}

// ReplayOption configures a ReplayReader
type ReplayOption func(*ReplayReader)

// WithClock sets the clock used for delays
func WithClock(c clock.Clock) ReplayOption {
	return func(r *ReplayReader) {
		r.clock = c
	}
}

// NewReplayReader creates a new replay reader. rate scales the original
// delays: 0 replays instantly, 1 at the original speed, 0.5 at twice the speed.
func NewReplayReader(r io.Reader, rate float64, opts ...ReplayOption) (*ReplayReader, error) {
	// Read and parse all lines upfront
	var lines []lineWithTiming
	var last time.Time
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), DefaultMaxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		lineCopy := make([]byte, len(line))
		copy(lineCopy, line)

		// Lines without a timestamp inherit the previous one
		if evt, err := parser.ParseLine(lineCopy); err == nil {
			if ts, ok := eventTime(evt); ok {
				last = ts
			}
		}
		lines = append(lines, lineWithTiming{line: lineCopy, timestamp: last})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	rr := &ReplayReader{
		lines: lines,
		rate:  rate,
		clock: clock.NewClock(),
	}
	for _, opt := range opts {
		opt(rr)
	}
	return rr, nil
}

func eventTime(evt parser.Event) (time.Time, bool) {
	switch p := evt.Payload.(type) {
	case parser.TestStarted:
		return time.UnixMilli(p.StartTime), true
	case parser.TestEnded:
		return time.UnixMilli(p.EndTime), true
	}
	return time.Time{}, false
}

// Read implements io.Reader, returning data line-by-line with timing delays
func (r *ReplayReader) Read(p []byte) (n int, err error) {
	// If we're in the middle of returning a line, continue from buffer
	if r.bufferPos < len(r.lineBuffer) {
		n = copy(p, r.lineBuffer[r.bufferPos:])
		r.bufferPos += n
		return n, nil
	}

	if r.currentIdx >= len(r.lines) {
		return 0, io.EOF
	}

	current := r.lines[r.currentIdx]

	if r.rate > 0 && !r.lastEventTime.IsZero() && !current.timestamp.IsZero() {
		actualDelay := current.timestamp.Sub(r.lastEventTime)
		if actualDelay > 0 {
			r.clock.Sleep(time.Duration(float64(actualDelay) * r.rate))
		}
	}

	if !current.timestamp.IsZero() {
		r.lastEventTime = current.timestamp
	}

	// Prepare line buffer (line + newline)
	r.lineBuffer = make([]byte, len(current.line)+1)
	copy(r.lineBuffer, current.line)
	r.lineBuffer[len(current.line)] = '\n'
	r.bufferPos = 0
	r.currentIdx++

	n = copy(p, r.lineBuffer[r.bufferPos:])
	r.bufferPos += n

	return n, nil
}
