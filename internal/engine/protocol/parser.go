// Package protocol extracts the 5-tuple, MAC addresses and transport payload
// from captured frames.
package protocol

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"Go2NetTop/internal/core/model"
)

// Parser decodes frames of one link type. It reuses its layer buffers between
// calls and is not safe for concurrent use. The slices in a ParsedPacket
// point into the frame passed to Parse.
type Parser struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth  layers.Ethernet
	dot1 layers.Dot1Q
	sll  layers.LinuxSLL
	ip4  layers.IPv4
	tcp  layers.TCP
	udp  layers.UDP
	pl   gopacket.Payload
}

// NewParser creates a parser for frames of the given link type. Unknown link
// types are decoded as Ethernet.
func NewParser(linkType layers.LinkType) *Parser {
	p := &Parser{decoded: make([]gopacket.LayerType, 0, 8)}

	first := layers.LayerTypeEthernet
	switch linkType {
	case layers.LinkTypeLinuxSLL:
		first = layers.LayerTypeLinuxSLL
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		first = layers.LayerTypeIPv4
	}

	p.parser = gopacket.NewDecodingLayerParser(first,
		&p.eth, &p.dot1, &p.sll, &p.ip4, &p.tcp, &p.udp, &p.pl)
	p.parser.IgnoreUnsupported = true
	return p
}

// Parse decodes one frame. It returns false for anything that does not yield
// a complete IPv4 TCP or UDP tuple with non-zero ports.
func (p *Parser) Parse(data []byte) (model.ParsedPacket, bool) {
	var pkt model.ParsedPacket

	// Errors past the transport header (a truncated payload, say) do not
	// invalidate what was already decoded.
	_ = p.parser.DecodeLayers(data, &p.decoded)

	var haveIP, haveL4 bool
	for _, lt := range p.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			pkt.SrcMAC = p.eth.SrcMAC
			pkt.DstMAC = p.eth.DstMAC
		case layers.LayerTypeLinuxSLL:
			if p.sll.AddrLen == 6 {
				pkt.SrcMAC = p.sll.Addr
			}
		case layers.LayerTypeIPv4:
			if p.ip4.FragOffset != 0 {
				// Only the first fragment carries the transport header.
				return pkt, false
			}
			haveIP = true
			pkt.Tuple.Proto = uint8(p.ip4.Protocol)
			pkt.Tuple.SrcAddr = model.IPToUint32(p.ip4.SrcIP)
			pkt.Tuple.DstAddr = model.IPToUint32(p.ip4.DstIP)
		case layers.LayerTypeTCP:
			haveL4 = true
			pkt.Tuple.SrcPort = uint16(p.tcp.SrcPort)
			pkt.Tuple.DstPort = uint16(p.tcp.DstPort)
			pkt.Payload = p.tcp.LayerPayload()
		case layers.LayerTypeUDP:
			haveL4 = true
			pkt.Tuple.SrcPort = uint16(p.udp.SrcPort)
			pkt.Tuple.DstPort = uint16(p.udp.DstPort)
			pkt.Payload = p.udp.LayerPayload()
		}
	}

	if !haveIP || !haveL4 || pkt.Tuple.SrcPort == 0 || pkt.Tuple.DstPort == 0 {
		return pkt, false
	}
	return pkt, true
}
