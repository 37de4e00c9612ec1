package sender

// ProgressEvent reports how much of the image has been acknowledged
type ProgressEvent struct {
	Percent    float64
	SentBytes  int64
	TotalBytes int64
}

// Sink receives protocol events and progress. Implementations must return
// quickly; they are called from the transfer loop.
type Sink interface {
	// OnLog is called for every protocol event (attempt, timeout, ack result).
	OnLog(message string)
	// OnProgress is called after each acknowledged block and once at completion.
	OnProgress(ev ProgressEvent)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) OnLog(string)             {}
func (NopSink) OnProgress(ProgressEvent) {}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	Log      func(message string)
	Progress func(ev ProgressEvent)
}

func (f SinkFuncs) OnLog(message string) {
	if f.Log != nil {
		f.Log(message)
	}
}

func (f SinkFuncs) OnProgress(ev ProgressEvent) {
	if f.Progress != nil {
		f.Progress(ev)
	}
}

// MultiSink fans events out to several sinks in order
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) OnLog(message string) {
	for _, s := range m {
		s.OnLog(message)
	}
}

func (m multiSink) OnProgress(ev ProgressEvent) {
	for _, s := range m {
		s.OnProgress(ev)
	}
}
