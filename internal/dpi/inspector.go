package dpi

import (
	"time"

	"Go2NetTop/internal/core/model"
)

// Inspector is the built-in payload classifier.
type Inspector struct {
	dissectors []dissector
}

// NewInspector creates an Inspector with every built-in dissector.
func NewInspector() *Inspector {
	return &Inspector{
		dissectors: []dissector{
			dissectTLS,
			dissectHTTP,
			dissectSSH,
			dissectMail,
			dissectBitTorrent,
			dissectSTUN,
			dissectQUIC,
			dissectDNS,
		},
	}
}

// Dissect inspects one payload slice and updates the flow state. Payload-less
// packets (bare ACKs, handshakes) only advance the packet counters.
func (in *Inspector) Dissect(state *State, payload []byte, ts time.Time, src2dst bool) Classification {
	if src2dst {
		state.Packets[0]++
	} else {
		state.Packets[1]++
	}
	if len(payload) == 0 {
		return state.result
	}

	state.PayloadPackets++
	if state.FirstPayload.IsZero() {
		state.FirstPayload = ts
	}

	for _, d := range in.dissectors {
		if c := d(state, payload); !c.IsUnknown() {
			state.result = c
			return c
		}
	}
	return state.result
}

type portKey struct {
	l4   model.L4Proto
	port uint16
}

var wellKnownPorts = map[portKey]Protocol{
	{model.L4TCP, 80}:   ProtoHTTP,
	{model.L4TCP, 8080}: ProtoHTTP,
	{model.L4TCP, 443}:  ProtoTLS,
	{model.L4TCP, 8443}: ProtoTLS,
	{model.L4UDP, 443}:  ProtoQUIC,
	{model.L4TCP, 53}:   ProtoDNS,
	{model.L4UDP, 53}:   ProtoDNS,
	{model.L4TCP, 22}:   ProtoSSH,
	{model.L4TCP, 25}:   ProtoSMTP,
	{model.L4TCP, 587}:  ProtoSMTP,
	{model.L4TCP, 21}:   ProtoFTP,
	{model.L4TCP, 110}:  ProtoPOP3,
	{model.L4TCP, 143}:  ProtoIMAP,
	{model.L4UDP, 123}:  ProtoNTP,
	{model.L4UDP, 67}:   ProtoDHCP,
	{model.L4UDP, 68}:   ProtoDHCP,
	{model.L4UDP, 5353}: ProtoMDNS,
	{model.L4UDP, 137}:  ProtoNetBIOS,
	{model.L4UDP, 138}:  ProtoNetBIOS,
	{model.L4TCP, 139}:  ProtoNetBIOS,
	{model.L4UDP, 161}:  ProtoSNMP,
	{model.L4UDP, 162}:  ProtoSNMP,
	{model.L4UDP, 514}:  ProtoSyslog,
	{model.L4TCP, 3389}: ProtoRDP,
	{model.L4TCP, 3306}: ProtoMySQL,
	{model.L4TCP, 5432}: ProtoPostgreSQL,
	{model.L4TCP, 6379}: ProtoRedis,
	{model.L4UDP, 3478}: ProtoSTUN,
	{model.L4TCP, 6881}: ProtoBitTorrent,
	{model.L4UDP, 6881}: ProtoBitTorrent,
}

// Guess classifies a flow from its transport protocol and ports. The
// destination port is tried first, then the source port.
func (in *Inspector) Guess(l4 model.L4Proto, saddr uint32, sport uint16, daddr uint32, dport uint16) Classification {
	if l4 == model.L4ICMP {
		return Classification{App: ProtoICMP}
	}
	if p, ok := wellKnownPorts[portKey{l4, dport}]; ok {
		return Classification{App: p}
	}
	if p, ok := wellKnownPorts[portKey{l4, sport}]; ok {
		return Classification{App: p}
	}
	return Unknown
}

// Name renders a classification as "Master.App", or just the app when there
// is no distinct carrier.
func (in *Inspector) Name(c Classification) string {
	if c.Master != ProtoUnknown && c.Master != c.App {
		if c.App == ProtoUnknown {
			return c.Master.String()
		}
		return c.Master.String() + "." + c.App.String()
	}
	return c.App.String()
}
