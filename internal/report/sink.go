package report

import (
	"log"

	"Go2NetTop/internal/logging"
)

// Sink receives one record per processed packet. Emit is called with the
// engine lock held and must not block.
type Sink interface {
	Emit(rec FlowRecord)
}

// Discard drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(FlowRecord) {}

// LogSink prints every record through the standard logger when debug output
// is enabled.
type LogSink struct{}

func (LogSink) Emit(rec FlowRecord) {
	if logging.DebugEnabled() {
		log.Printf("Packet on %s", rec)
	}
}

// MultiSink fans a record out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(rec FlowRecord) {
	for _, s := range m {
		s.Emit(rec)
	}
}

// Func adapts a plain function to a Sink.
type Func func(rec FlowRecord)

func (f Func) Emit(rec FlowRecord) {
	f(rec)
}
