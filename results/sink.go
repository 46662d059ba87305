package results

// ResultSink receives the results an Aggregator emits, in order.
type ResultSink interface {
	Accept(TestResult)
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(TestResult)

func (f SinkFunc) Accept(r TestResult) { f(r) }

// Tee returns a sink that forwards each result to every non-nil sink.
func Tee(sinks ...ResultSink) ResultSink {
	var live []ResultSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return tee(live)
}

type tee []ResultSink

func (t tee) Accept(r TestResult) {
	for _, s := range t {
		s.Accept(r)
	}
}
