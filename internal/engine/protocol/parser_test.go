package protocol

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"Go2NetTop/internal/core/model"
)

var (
	macA = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0a}
	macB = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0b}
	ipA  = net.IPv4(10, 0, 0, 1)
	ipB  = net.IPv4(10, 0, 0, 2)
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("Failed to serialize packet: %v", err)
	}
	return buf.Bytes()
}

func tcpFrame(t *testing.T, payload []byte) []byte {
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: ipA, DstIP: ipB}
	tcp := &layers.TCP{SrcPort: 1000, DstPort: 80, PSH: true, ACK: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set network layer: %v", err)
	}
	return serialize(t, eth, ip, tcp, gopacket.Payload(payload))
}

func TestParseTCP(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)

	pkt, ok := p.Parse(tcpFrame(t, []byte("GET / HTTP/1.1\r\n\r\n")))
	if !ok {
		t.Fatalf("Expected TCP frame to parse")
	}

	want := model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: 0x0A000001, DstAddr: 0x0A000002, SrcPort: 1000, DstPort: 80}
	if pkt.Tuple != want {
		t.Errorf("Tuple = %v, want %v", pkt.Tuple, want)
	}
	if pkt.SrcMAC.String() != macA.String() || pkt.DstMAC.String() != macB.String() {
		t.Errorf("MACs = %s -> %s, want %s -> %s", pkt.SrcMAC, pkt.DstMAC, macA, macB)
	}
	if string(pkt.Payload) != "GET / HTTP/1.1\r\n\r\n" {
		t.Errorf("Payload = %q", pkt.Payload)
	}
}

func TestParseVLANUDP(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)

	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeDot1Q}
	vlan := &layers.Dot1Q{VLANIdentifier: 42, Type: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: ipB, DstIP: ipA}
	udp := &layers.UDP{SrcPort: 53, DstPort: 40000}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set network layer: %v", err)
	}

	pkt, ok := p.Parse(serialize(t, eth, vlan, ip, udp, gopacket.Payload([]byte{1, 2, 3})))
	if !ok {
		t.Fatalf("Expected VLAN tagged UDP frame to parse")
	}
	if pkt.Tuple.Proto != model.ProtoUDP || pkt.Tuple.SrcPort != 53 || pkt.Tuple.DstPort != 40000 {
		t.Errorf("Unexpected tuple %v", pkt.Tuple)
	}
	if len(pkt.Payload) != 3 {
		t.Errorf("Payload length = %d, want 3", len(pkt.Payload))
	}
}

func TestParseRawIPv4(t *testing.T) {
	p := NewParser(layers.LinkTypeRaw)

	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: ipA, DstIP: ipB}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 5001}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set network layer: %v", err)
	}

	pkt, ok := p.Parse(serialize(t, ip, udp))
	if !ok {
		t.Fatalf("Expected raw IPv4 frame to parse")
	}
	if pkt.SrcMAC != nil || pkt.DstMAC != nil {
		t.Errorf("Raw frames carry no MAC addresses")
	}
	if len(pkt.Payload) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(pkt.Payload))
	}
}

func TestParseRejects(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)

	icmp := serialize(t,
		&layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4, SrcIP: ipA, DstIP: ipB},
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)},
	)
	ipv6 := serialize(t,
		&layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv6},
		&layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolNoNextHeader,
			SrcIP: net.ParseIP("fe80::1"), DstIP: net.ParseIP("fe80::2")},
	)
	arp := serialize(t,
		&layers.Ethernet{SrcMAC: macA, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP},
		&layers.ARP{AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4, HwAddressSize: 6,
			ProtAddressSize: 4, Operation: layers.ARPRequest, SourceHwAddress: macA, SourceProtAddress: ipA.To4(),
			DstHwAddress: make([]byte, 6), DstProtAddress: ipB.To4()},
	)

	cases := map[string][]byte{
		"icmp":      icmp,
		"ipv6":      ipv6,
		"arp":       arp,
		"truncated": tcpFrame(t, nil)[:20],
		"garbage":   {0xde, 0xad},
	}
	for name, frame := range cases {
		if _, ok := p.Parse(frame); ok {
			t.Errorf("%s: expected frame to be rejected", name)
		}
	}
}

func TestParseZeroPort(t *testing.T) {
	p := NewParser(layers.LinkTypeEthernet)

	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: ipA, DstIP: ipB}
	udp := &layers.UDP{SrcPort: 0, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set network layer: %v", err)
	}
	frame := serialize(t, &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}, ip, udp)

	if _, ok := p.Parse(frame); ok {
		t.Errorf("Expected zero source port to be rejected")
	}
}
