package model

import (
	"net"
	"testing"
)

func TestPacketTuple_Valid(t *testing.T) {
	valid := PacketTuple{Proto: ProtoTCP, SrcAddr: 1, DstAddr: 2, SrcPort: 1000, DstPort: 80}
	if !valid.Valid() {
		t.Fatalf("Expected %+v to be valid", valid)
	}

	cases := map[string]PacketTuple{
		"no proto": {SrcAddr: 1, DstAddr: 2, SrcPort: 1000, DstPort: 80},
		"no saddr": {Proto: ProtoTCP, DstAddr: 2, SrcPort: 1000, DstPort: 80},
		"no daddr": {Proto: ProtoTCP, SrcAddr: 1, SrcPort: 1000, DstPort: 80},
		"no sport": {Proto: ProtoTCP, SrcAddr: 1, DstAddr: 2, DstPort: 80},
		"no dport": {Proto: ProtoTCP, SrcAddr: 1, DstAddr: 2, SrcPort: 1000},
	}
	for name, tuple := range cases {
		if tuple.Valid() {
			t.Errorf("%s: expected tuple %+v to be invalid", name, tuple)
		}
	}
}

func TestIPConversion(t *testing.T) {
	ip := net.ParseIP("192.168.1.10")
	addr := IPToUint32(ip)
	if addr != 0xC0A8010A {
		t.Fatalf("Expected 0xC0A8010A, got %#x", addr)
	}
	if got := Uint32ToIP(addr).String(); got != "192.168.1.10" {
		t.Errorf("Expected round trip to 192.168.1.10, got %s", got)
	}
	if IPToUint32(net.ParseIP("2001:db8::1")) != 0 {
		t.Errorf("Expected IPv6 address to map to 0")
	}
}

func TestL4ProtoFrom(t *testing.T) {
	if L4ProtoFrom(ProtoTCP) != L4TCP || L4ProtoFrom(ProtoUDP) != L4UDP || L4ProtoFrom(ProtoICMP) != L4ICMP {
		t.Fatalf("Known protocol numbers mapped incorrectly")
	}
	if L4ProtoFrom(47).String() != "UNKNOWN" {
		t.Errorf("Expected GRE to map to UNKNOWN")
	}
}

func TestPacketTupleReverse(t *testing.T) {
	tuple := PacketTuple{Proto: ProtoTCP, SrcAddr: 1, DstAddr: 2, SrcPort: 1000, DstPort: 80}
	rev := tuple.Reverse()

	if rev.SrcAddr != 2 || rev.DstAddr != 1 || rev.SrcPort != 80 || rev.DstPort != 1000 || rev.Proto != ProtoTCP {
		t.Errorf("Reverse() = %v", rev)
	}
	if rev.Reverse() != tuple {
		t.Errorf("Reversing twice should give back the original tuple")
	}
}
