package dpi

import "time"

// State is the per-flow classification state. The flow engine treats it as
// opaque; only the classifier reads and writes its fields.
type State struct {
	// Packets counts dissected packets per direction, src2dst first.
	Packets [2]uint32
	// PayloadPackets counts dissected packets that carried payload.
	PayloadPackets uint32
	FirstPayload   time.Time

	SNI      string
	JA3      string
	HTTPHost string
	DNSQuery string

	result Classification
}

// NewState returns a fresh classification state.
func NewState() *State {
	return &State{}
}

// Result returns the last classification recorded in the state.
func (s *State) Result() Classification {
	return s.result
}
