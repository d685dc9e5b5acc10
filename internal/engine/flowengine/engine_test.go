package flowengine

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go2NetTop/internal/core/model"
	"Go2NetTop/internal/dpi"
	"Go2NetTop/internal/engine/protocol"
	"Go2NetTop/internal/report"
)

var (
	t0   = time.Unix(1_700_000_000, 0)
	macA = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0a}
	macB = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x0b}
	ipA  = net.IPv4(10, 0, 0, 1).To4()
	ipB  = net.IPv4(10, 0, 0, 2).To4()
	ipC  = net.IPv4(10, 0, 0, 3).To4()
)

// stubClassifier never recognises a payload and records how often it is
// consulted.
type stubClassifier struct {
	dissects int
	guesses  int
	result   dpi.Classification
	guess    dpi.Classification
}

func (s *stubClassifier) Dissect(state *dpi.State, payload []byte, ts time.Time, src2dst bool) dpi.Classification {
	s.dissects++
	return s.result
}

func (s *stubClassifier) Guess(l4 model.L4Proto, saddr uint32, sport uint16, daddr uint32, dport uint16) dpi.Classification {
	s.guesses++
	return s.guess
}

func (s *stubClassifier) Name(c dpi.Classification) string {
	return dpi.NewInspector().Name(c)
}

func frame(t *testing.T, srcMAC, dstMAC net.HardwareAddr, src, dst net.IP, sport, dport uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: src, DstIP: dst}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func hdr(ts time.Time, length uint32) model.PacketHeader {
	return model.PacketHeader{Timestamp: ts, WireLength: length}
}

func newEngine(cls dpi.Classifier, sink report.Sink) *Engine {
	return New(Config{}, protocol.NewParser(layers.LinkTypeEthernet), cls, sink, nil)
}

func TestProcessPacket_Bidirectional(t *testing.T) {
	e := newEngine(&stubClassifier{}, nil)

	ab := frame(t, macA, macB, ipA, ipB, 1000, 80, nil)
	ba := frame(t, macB, macA, ipB, ipA, 80, 1000, nil)

	require.True(t, e.ProcessPacket(hdr(t0, 100), ab))
	require.True(t, e.ProcessPacket(hdr(t0.Add(time.Millisecond), 200), ba))

	flows := e.Flows()
	require.Len(t, flows, 1, "the reply belongs to the same flow")
	f := flows[0]
	assert.Equal(t, model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: 0x0A000001, DstAddr: 0x0A000002, SrcPort: 1000, DstPort: 80}, f.Tuple)
	assert.Equal(t, uint64(100), f.Stats.Src2DstBytes)
	assert.Equal(t, uint64(200), f.Stats.Dst2SrcBytes)
	assert.Equal(t, uint64(1), f.Stats.Src2DstPackets)
	assert.Equal(t, uint64(1), f.Stats.Dst2SrcPackets)
	assert.Equal(t, macA.String(), f.SrcMAC)
	assert.Equal(t, macB.String(), f.DstMAC)

	hosts := e.Hosts()
	require.Len(t, hosts, 2)
	for _, h := range hosts {
		assert.Equal(t, uint64(300), h.Stats.Bytes)
		assert.Equal(t, int32(1), h.Flows, "each host is held by the single flow")
	}

	totals := e.Totals()
	assert.Equal(t, uint64(2), totals.PacketsProcessed)
	assert.Equal(t, uint64(1), totals.FlowsCreated)
	assert.Equal(t, uint64(2), totals.HostsCreated)
	assert.Equal(t, t0.Add(time.Millisecond), totals.LastPacket)
}

func TestProcessPacket_MACLatchOnlyOnCreation(t *testing.T) {
	e := newEngine(&stubClassifier{}, nil)
	other := net.HardwareAddr{0x02, 0, 0, 0, 0, 0xff}

	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, macA, macB, ipA, ipB, 1000, 80, nil)))
	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, other, macB, ipA, ipB, 1000, 80, nil)))
	assert.Equal(t, macA.String(), e.Flows()[0].SrcMAC, "later packets do not overwrite the MAC")

	// A new flow from the same host latches the newest MAC.
	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, other, macB, ipA, ipB, 1001, 80, nil)))
	for _, h := range e.Hosts() {
		if h.IP.Equal(ipA) {
			assert.Equal(t, other.String(), h.MAC)
		}
	}
}

func TestProcessPacket_DropsInvalid(t *testing.T) {
	var emitted int
	e := newEngine(&stubClassifier{}, report.Func(func(report.FlowRecord) { emitted++ }))

	assert.False(t, e.ProcessPacket(hdr(t0, 4), []byte{1, 2, 3, 4}))
	zeroAddr := frame(t, macA, macB, net.IPv4zero.To4(), ipB, 1000, 80, nil)
	assert.False(t, e.ProcessPacket(hdr(t0, 60), zeroAddr))

	assert.Empty(t, e.Flows())
	assert.Empty(t, e.Hosts())
	assert.Zero(t, emitted)
	assert.Equal(t, uint64(2), e.Totals().PacketsDropped)
}

func TestProcessPacket_GiveUp(t *testing.T) {
	cls := &stubClassifier{guess: dpi.Classification{App: dpi.ProtoHTTP}}
	e := newEngine(cls, nil)
	pkt := frame(t, macA, macB, ipA, ipB, 1000, 80, []byte("opaque"))

	for i := 1; i <= 7; i++ {
		e.ProcessPacket(hdr(t0.Add(time.Duration(i)*time.Millisecond), 60), pkt)
		assert.False(t, e.Flows()[0].Completed, "packet %d", i)
	}
	assert.Equal(t, 0, cls.guesses)

	e.ProcessPacket(hdr(t0.Add(8*time.Millisecond), 60), pkt)
	f := e.Flows()[0]
	assert.True(t, f.Completed, "completed by the 8th packet")
	assert.Equal(t, dpi.Classification{App: dpi.ProtoHTTP}, f.Class)
	assert.Equal(t, "HTTP", f.Protocol)
	assert.Equal(t, 8, cls.dissects)
	assert.Equal(t, 1, cls.guesses)

	e.ProcessPacket(hdr(t0.Add(9*time.Millisecond), 60), pkt)
	assert.Equal(t, 8, cls.dissects, "no inspection after completion")
	assert.Equal(t, 1, cls.guesses)
}

func TestProcessPacket_GiveUpWithUnknownGuess(t *testing.T) {
	cls := &stubClassifier{}
	e := newEngine(cls, nil)
	pkt := frame(t, macA, macB, ipA, ipB, 40000, 40001, nil)

	for i := 0; i < 10; i++ {
		e.ProcessPacket(hdr(t0, 60), pkt)
	}
	f := e.Flows()[0]
	assert.True(t, f.Completed)
	assert.Equal(t, "Unknown", f.Protocol)
	assert.Equal(t, 8, cls.dissects)
}

func TestProcessPacket_RealInspector(t *testing.T) {
	var last report.FlowRecord
	e := newEngine(dpi.NewInspector(), report.Func(func(r report.FlowRecord) { last = r }))

	req := []byte("GET / HTTP/1.1\r\nHost: github.com\r\n\r\n")
	require.True(t, e.ProcessPacket(hdr(t0, 120), frame(t, macA, macB, ipA, ipB, 50000, 80, req)))

	f := e.Flows()[0]
	assert.True(t, f.Completed)
	assert.Equal(t, "HTTP.GitHub", f.Protocol)
	assert.Equal(t, "github.com", f.HTTPHost)

	assert.Equal(t, "HTTP.GitHub", last.Protocol)
	assert.True(t, last.Completed)
	assert.Equal(t, uint64(120), last.Bytes())
}

func TestPurgeIdle_FlowsBeforeHosts(t *testing.T) {
	e := newEngine(&stubClassifier{}, nil)
	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, macA, macB, ipA, ipB, 1000, 80, nil)))

	// Past the flow timeout only: the flow goes, the hosts stay.
	flows, hosts := e.PurgeIdle(t0.Add(DefaultFlowIdleTimeout + time.Second))
	assert.Equal(t, 1, flows)
	assert.Equal(t, 0, hosts)
	for _, h := range e.Hosts() {
		assert.Zero(t, h.Flows, "the purged flow gave its host shares back")
	}

	flows, hosts = e.PurgeIdle(t0.Add(DefaultHostIdleTimeout + time.Second))
	assert.Equal(t, 0, flows)
	assert.Equal(t, 2, hosts)
	assert.Zero(t, e.Totals().ActiveHosts)
}

func TestPurgeIdle_SamePass(t *testing.T) {
	e := newEngine(&stubClassifier{}, nil)
	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, macA, macB, ipA, ipB, 1000, 80, nil)))

	flows, hosts := e.PurgeIdle(t0.Add(time.Hour))
	assert.Equal(t, 1, flows)
	assert.Equal(t, 2, hosts, "hosts freed by expiring flows go in the same pass")
}

func TestPurgeIdle_ReferencedHostSurvives(t *testing.T) {
	e := newEngine(&stubClassifier{}, nil)

	// Host A is shared by two flows; the B flow stays active.
	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, macA, macB, ipA, ipB, 1000, 80, nil)))
	late := t0.Add(DefaultHostIdleTimeout)
	require.True(t, e.ProcessPacket(hdr(late, 60), frame(t, macA, macB, ipA, ipC, 1001, 80, nil)))

	flows, hosts := e.PurgeIdle(late.Add(DefaultFlowIdleTimeout / 2))
	assert.Equal(t, 1, flows, "only the first flow is idle")
	assert.Equal(t, 1, hosts, "host B lost its last flow")

	var addrs []string
	for _, h := range e.Hosts() {
		addrs = append(addrs, h.IP.String())
	}
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.3"}, addrs)
}

func TestPurgeIdle_Boundary(t *testing.T) {
	e := newEngine(&stubClassifier{}, nil)
	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, macA, macB, ipA, ipB, 1000, 80, nil)))

	flows, _ := e.PurgeIdle(t0.Add(DefaultFlowIdleTimeout))
	assert.Zero(t, flows, "idle equal to the timeout is retained")

	flows, _ = e.PurgeIdle(t0.Add(DefaultFlowIdleTimeout + time.Nanosecond))
	assert.Equal(t, 1, flows)
}

func TestTableLimits(t *testing.T) {
	e := New(Config{MaxFlows: 1}, protocol.NewParser(layers.LinkTypeEthernet), &stubClassifier{}, nil, nil)

	require.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, macA, macB, ipA, ipB, 1000, 80, nil)))
	assert.False(t, e.ProcessPacket(hdr(t0, 60), frame(t, macA, macB, ipA, ipB, 1001, 80, nil)))
	assert.True(t, e.ProcessPacket(hdr(t0, 60), frame(t, macB, macA, ipB, ipA, 80, 1000, nil)), "existing flow still accepts packets")

	assert.Len(t, e.Flows(), 1)
	assert.Equal(t, uint64(1), e.Totals().PacketsDropped)
	for _, h := range e.Hosts() {
		assert.Equal(t, int32(1), h.Flows)
	}
}

func TestUpdateThroughput(t *testing.T) {
	e := newEngine(&stubClassifier{}, nil)
	pkt := frame(t, macA, macB, ipA, ipB, 1000, 80, nil)

	e.ProcessPacket(hdr(t0, 500), pkt)
	e.UpdateThroughput(t0)
	e.ProcessPacket(hdr(t0, 1500), pkt)
	e.UpdateThroughput(t0.Add(time.Second))

	assert.InDelta(t, 1500.0, e.Flows()[0].Stats.Throughput, 1e-9)
	for _, h := range e.Hosts() {
		assert.InDelta(t, 1500.0, h.Stats.Throughput, 1e-9)
	}
}

func TestTopFlows(t *testing.T) {
	flows := []FlowView{
		{SrcPort: 1, Stats: StatsView{Bytes: 10, Packets: 5, Throughput: 3}},
		{SrcPort: 2, Stats: StatsView{Bytes: 30, Packets: 1, Throughput: 2}},
		{SrcPort: 3, Stats: StatsView{Bytes: 20, Packets: 9, Throughput: 1}},
	}

	got := TopFlows(append([]FlowView(nil), flows...), SortByBytes, 2)
	require.Len(t, got, 2)
	assert.Equal(t, []uint16{2, 3}, []uint16{got[0].SrcPort, got[1].SrcPort})

	got = TopFlows(append([]FlowView(nil), flows...), SortByPackets, 0)
	assert.Equal(t, uint16(3), got[0].SrcPort)

	got = TopFlows(append([]FlowView(nil), flows...), SortByThroughput, 1)
	assert.Equal(t, uint16(1), got[0].SrcPort)

	key, ok := ParseSortKey("")
	assert.True(t, ok)
	assert.Equal(t, SortByBytes, key)
	_, ok = ParseSortKey("latency")
	assert.False(t, ok)
}
