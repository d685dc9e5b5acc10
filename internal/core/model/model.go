package model

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// IP protocol numbers understood by the tuple extractor.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// PacketTuple is the 5-tuple of a packet as it was observed on the wire.
// It is used verbatim as the flow table key and is never normalized.
type PacketTuple struct {
	Proto   uint8
	SrcAddr uint32
	DstAddr uint32
	SrcPort uint16
	DstPort uint16
}

// Valid reports whether all five fields of the tuple are set.
func (t PacketTuple) Valid() bool {
	return t.Proto != 0 &&
		t.SrcAddr != 0 && t.DstAddr != 0 &&
		t.SrcPort != 0 && t.DstPort != 0
}

// Reverse returns the tuple of a packet travelling the other way.
func (t PacketTuple) Reverse() PacketTuple {
	return PacketTuple{
		Proto:   t.Proto,
		SrcAddr: t.DstAddr,
		DstAddr: t.SrcAddr,
		SrcPort: t.DstPort,
		DstPort: t.SrcPort,
	}
}

// String returns the "proto src:sport -> dst:dport" form of the tuple.
func (t PacketTuple) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d", L4ProtoFrom(t.Proto),
		Uint32ToIP(t.SrcAddr), t.SrcPort, Uint32ToIP(t.DstAddr), t.DstPort)
}

// Direction of a packet relative to the flow that owns it.
type Direction uint8

const (
	Src2Dst Direction = iota
	Dst2Src
)

// IsSrc2Dst reports whether the packet travels in the flow's original direction.
func (d Direction) IsSrc2Dst() bool {
	return d == Src2Dst
}

func (d Direction) String() string {
	if d == Src2Dst {
		return "src2dst"
	}
	return "dst2src"
}

// L4Proto is the transport protocol of a flow.
type L4Proto uint8

const (
	L4Unknown L4Proto = iota
	L4TCP
	L4UDP
	L4ICMP
)

// L4ProtoFrom maps an IP protocol number to an L4Proto.
func L4ProtoFrom(proto uint8) L4Proto {
	switch proto {
	case ProtoICMP:
		return L4ICMP
	case ProtoTCP:
		return L4TCP
	case ProtoUDP:
		return L4UDP
	default:
		return L4Unknown
	}
}

func (p L4Proto) String() string {
	switch p {
	case L4TCP:
		return "TCP"
	case L4UDP:
		return "UDP"
	case L4ICMP:
		return "ICMP"
	default:
		return "UNKNOWN"
	}
}

// PacketHeader holds the capture metadata delivered with every frame.
type PacketHeader struct {
	Timestamp  time.Time
	WireLength uint32
}

// ParsedPacket is the result of a successful header parse.
type ParsedPacket struct {
	Tuple  PacketTuple
	SrcMAC net.HardwareAddr
	DstMAC net.HardwareAddr
	// Payload is the transport payload, i.e. the bytes after the TCP/UDP header.
	Payload []byte
}

// Uint32ToIP converts a host-order IPv4 address into a net.IP.
func Uint32ToIP(addr uint32) net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, addr)
	return ip
}

// IPToUint32 converts an IPv4 address to its numeric form. It returns 0 for
// anything that is not an IPv4 address.
func IPToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}
