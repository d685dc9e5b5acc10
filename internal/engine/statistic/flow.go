// Package statistic holds the entities the flow engine keeps in its tables:
// hosts, flows and their traffic counters.
package statistic

import (
	"fmt"
	"time"

	"Go2NetTop/internal/core/model"
	"Go2NetTop/internal/dpi"
	"Go2NetTop/internal/engine/lifetime"
)

// Flow is one bidirectional conversation keyed by the tuple of its first
// packet.
type Flow struct {
	Tuple   model.PacketTuple
	L4Proto model.L4Proto
	SrcPort uint16
	DstPort uint16

	// Src and Dst are the flow's own shares of its endpoint hosts.
	Src *lifetime.Handle[*Host]
	Dst *lifetime.Handle[*Host]

	Stats TrafficStats

	DPI       *dpi.State
	Protocol  dpi.Classification
	completed bool

	lifetime.RefCount
}

// NewFlow creates a flow for tuple between src and dst. The flow takes its
// own share of both hosts and gives them back in Finalize.
func NewFlow(tuple model.PacketTuple, src, dst *lifetime.Handle[*Host]) *Flow {
	return &Flow{
		Tuple:   tuple,
		L4Proto: model.L4ProtoFrom(tuple.Proto),
		SrcPort: tuple.SrcPort,
		DstPort: tuple.DstPort,
		Src:     src.Clone(),
		Dst:     dst.Clone(),
		DPI:     dpi.NewState(),
	}
}

// LastSeen implements lifetime.Item.
func (f *Flow) LastSeen() time.Time {
	return f.Stats.LastSeen
}

// Finalize releases the flow's host shares when the flow leaves its table.
func (f *Flow) Finalize() {
	f.Src.Release()
	f.Dst.Release()
}

// JustCreated reports whether no packet has been accounted on the flow yet.
func (f *Flow) JustCreated() bool {
	return f.Stats.LastSeen.IsZero()
}

// Direction tells which way a packet with tuple travels on this flow: the
// original direction when its source port is the flow's source port. When
// both ports are equal the source address decides.
func (f *Flow) Direction(tuple model.PacketTuple) model.Direction {
	if f.SrcPort == f.DstPort {
		if tuple.SrcAddr == f.Tuple.SrcAddr {
			return model.Src2Dst
		}
		return model.Dst2Src
	}
	if tuple.SrcPort == f.SrcPort {
		return model.Src2Dst
	}
	return model.Dst2Src
}

// SetProtocol stores a DPI result. Detection completes once an application
// protocol is known and never reopens.
func (f *Flow) SetProtocol(c dpi.Classification) {
	f.Protocol = c
	if c.App != dpi.ProtoUnknown {
		f.completed = true
	}
}

// SetDetectedProtocol stores a final result, known or not, and completes
// detection.
func (f *Flow) SetDetectedProtocol(c dpi.Classification) {
	f.Protocol = c
	f.completed = true
}

// DetectionCompleted reports whether classification has finished.
func (f *Flow) DetectionCompleted() bool {
	return f.completed
}

func (f *Flow) String() string {
	return fmt.Sprintf("flow %s", f.Tuple)
}
