package statistic

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Go2NetTop/internal/core/model"
	"Go2NetTop/internal/dpi"
	"Go2NetTop/internal/engine/lifetime"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestTrafficStats_Accounting(t *testing.T) {
	var s TrafficStats

	lengths := []struct {
		dir model.Direction
		len uint32
	}{
		{model.Src2Dst, 100}, {model.Dst2Src, 200}, {model.Src2Dst, 60}, {model.Dst2Src, 1500},
	}
	for i, p := range lengths {
		s.AccountPacket(t0.Add(time.Duration(i)*time.Second), p.dir, p.len)
	}

	assert.Equal(t, uint64(4), s.Packets())
	assert.Equal(t, uint64(1860), s.Bytes())
	assert.Equal(t, uint64(2), s.Src2DstPackets)
	assert.Equal(t, uint64(160), s.Src2DstBytes)
	assert.Equal(t, uint64(1700), s.Dst2SrcBytes)
	assert.Equal(t, t0.Add(3*time.Second), s.LastSeen)
}

func TestTrafficStats_Update(t *testing.T) {
	var s TrafficStats

	s.AccountPacket(t0, model.Src2Dst, 1000)
	s.Update(t0)
	assert.Zero(t, s.Throughput, "first sample only sets the baseline")

	s.AccountPacket(t0, model.Dst2Src, 3000)
	s.Update(t0.Add(2 * time.Second))
	assert.InDelta(t, 1500.0, s.Throughput, 1e-9)

	// No elapsed time keeps the old estimate.
	s.Update(t0.Add(2 * time.Second))
	assert.InDelta(t, 1500.0, s.Throughput, 1e-9)

	s.Update(t0.Add(4 * time.Second))
	assert.Zero(t, s.Throughput)
}

func hostHandles(t *testing.T) (*Host, *Host, *lifetime.Handle[*Host], *lifetime.Handle[*Host]) {
	t.Helper()
	a := NewHost(0x0A000001, net.HardwareAddr{0, 1, 2, 3, 4, 5})
	b := NewHost(0x0A000002, nil)
	return a, b, lifetime.Acquire(a), lifetime.Acquire(b)
}

func TestNewHost(t *testing.T) {
	mac := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	h := NewHost(0xC0A80001, mac)
	mac[0] = 0

	assert.Equal(t, "192.168.0.1", h.IP.String())
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", h.MAC.String(), "MAC is copied")
	assert.Zero(t, h.Refs())
	assert.True(t, h.LastSeen().IsZero())
}

func TestFlow_HostShares(t *testing.T) {
	a, b, ha, hb := hostHandles(t)
	tuple := model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: a.Addr, DstAddr: b.Addr, SrcPort: 1000, DstPort: 80}

	f := NewFlow(tuple, ha, hb)
	ha.Release()
	hb.Release()

	assert.Equal(t, int32(1), a.Refs(), "flow keeps its own share")
	assert.Equal(t, int32(1), b.Refs())
	assert.Equal(t, model.L4TCP, f.L4Proto)

	f.Finalize()
	assert.Zero(t, a.Refs())
	assert.Zero(t, b.Refs())

	f.Finalize()
	assert.Zero(t, a.Refs(), "finalize twice does not underflow")
}

func TestFlow_Direction(t *testing.T) {
	_, _, ha, hb := hostHandles(t)
	defer ha.Release()
	defer hb.Release()

	tuple := model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: 1, DstAddr: 2, SrcPort: 1000, DstPort: 80}
	f := NewFlow(tuple, ha, hb)
	defer f.Finalize()

	assert.Equal(t, model.Src2Dst, f.Direction(tuple))
	reverse := model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: 2, DstAddr: 1, SrcPort: 80, DstPort: 1000}
	assert.Equal(t, model.Dst2Src, f.Direction(reverse))
}

func TestFlow_JustCreated(t *testing.T) {
	_, _, ha, hb := hostHandles(t)
	f := NewFlow(model.PacketTuple{Proto: model.ProtoUDP, SrcAddr: 1, DstAddr: 2, SrcPort: 5000, DstPort: 53}, ha, hb)

	require.True(t, f.JustCreated())
	f.Stats.AccountPacket(t0, model.Src2Dst, 64)
	assert.False(t, f.JustCreated())
	assert.Equal(t, t0, f.LastSeen())
}

func TestFlow_ClassificationLatch(t *testing.T) {
	_, _, ha, hb := hostHandles(t)
	f := NewFlow(model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: 1, DstAddr: 2, SrcPort: 1000, DstPort: 443}, ha, hb)

	f.SetProtocol(dpi.Unknown)
	assert.False(t, f.DetectionCompleted())

	f.SetProtocol(dpi.Classification{Master: dpi.ProtoTLS})
	assert.False(t, f.DetectionCompleted(), "a carrier alone does not complete detection")

	f.SetProtocol(dpi.Classification{Master: dpi.ProtoTLS, App: dpi.ProtoGoogle})
	assert.True(t, f.DetectionCompleted())

	f.SetProtocol(dpi.Unknown)
	assert.True(t, f.DetectionCompleted(), "completion never reverts")
}

func TestFlow_SetDetectedProtocol(t *testing.T) {
	_, _, ha, hb := hostHandles(t)
	f := NewFlow(model.PacketTuple{Proto: model.ProtoTCP, SrcAddr: 1, DstAddr: 2, SrcPort: 1000, DstPort: 4000}, ha, hb)

	f.SetDetectedProtocol(dpi.Unknown)
	assert.True(t, f.DetectionCompleted())
	assert.True(t, f.Protocol.IsUnknown())
}

func TestFlow_DirectionEqualPorts(t *testing.T) {
	_, _, ha, hb := hostHandles(t)
	tuple := model.PacketTuple{Proto: model.ProtoUDP, SrcAddr: 1, DstAddr: 2, SrcPort: 123, DstPort: 123}
	f := NewFlow(tuple, ha, hb)

	assert.Equal(t, model.Src2Dst, f.Direction(tuple))
	assert.Equal(t, model.Dst2Src, f.Direction(tuple.Reverse()))
}
