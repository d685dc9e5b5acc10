package flowengine

import (
	"net"
	"sort"
	"time"

	"Go2NetTop/internal/core/model"
	"Go2NetTop/internal/dpi"
	"Go2NetTop/internal/engine/statistic"
)

// StatsView is a copy of an entity's traffic counters.
type StatsView struct {
	Src2DstPackets uint64    `json:"src2dst_packets"`
	Dst2SrcPackets uint64    `json:"dst2src_packets"`
	Src2DstBytes   uint64    `json:"src2dst_bytes"`
	Dst2SrcBytes   uint64    `json:"dst2src_bytes"`
	Packets        uint64    `json:"packets"`
	Bytes          uint64    `json:"bytes"`
	Throughput     float64   `json:"throughput_bps"`
	LastSeen       time.Time `json:"last_seen"`
}

func statsView(s *statistic.TrafficStats) StatsView {
	return StatsView{
		Src2DstPackets: s.Src2DstPackets,
		Dst2SrcPackets: s.Dst2SrcPackets,
		Src2DstBytes:   s.Src2DstBytes,
		Dst2SrcBytes:   s.Dst2SrcBytes,
		Packets:        s.Packets(),
		Bytes:          s.Bytes(),
		Throughput:     s.Throughput,
		LastSeen:       s.LastSeen,
	}
}

// FlowView is a read-only copy of a flow.
type FlowView struct {
	Tuple     model.PacketTuple  `json:"-"`
	L4Proto   string             `json:"l4_proto"`
	SrcIP     net.IP             `json:"src_ip"`
	DstIP     net.IP             `json:"dst_ip"`
	SrcPort   uint16             `json:"src_port"`
	DstPort   uint16             `json:"dst_port"`
	SrcMAC    string             `json:"src_mac,omitempty"`
	DstMAC    string             `json:"dst_mac,omitempty"`
	Protocol  string             `json:"protocol"`
	Class     dpi.Classification `json:"-"`
	Completed bool               `json:"completed"`
	SNI       string             `json:"sni,omitempty"`
	JA3       string             `json:"ja3,omitempty"`
	HTTPHost  string             `json:"http_host,omitempty"`
	DNSQuery  string             `json:"dns_query,omitempty"`
	Stats     StatsView          `json:"stats"`
}

// HostView is a read-only copy of a host.
type HostView struct {
	IP    net.IP    `json:"ip"`
	MAC   string    `json:"mac,omitempty"`
	Flows int32     `json:"flows"`
	Stats StatsView `json:"stats"`
}

// Totals are the engine-wide counters.
type Totals struct {
	PacketsProcessed uint64    `json:"packets_processed"`
	PacketsDropped   uint64    `json:"packets_dropped"`
	BytesProcessed   uint64    `json:"bytes_processed"`
	FlowsCreated     uint64    `json:"flows_created"`
	FlowsPurged      uint64    `json:"flows_purged"`
	HostsCreated     uint64    `json:"hosts_created"`
	HostsPurged      uint64    `json:"hosts_purged"`
	ActiveFlows      int       `json:"active_flows"`
	ActiveHosts      int       `json:"active_hosts"`
	LastPacket       time.Time `json:"last_packet"`
}

func macString(mac net.HardwareAddr) string {
	if len(mac) == 0 {
		return ""
	}
	return mac.String()
}

// Flows returns a copy of every tracked flow.
func (e *Engine) Flows() []FlowView {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]FlowView, 0, e.flows.Len())
	e.flows.Range(func(t model.PacketTuple, f *statistic.Flow) bool {
		src, dst := f.Src.Get(), f.Dst.Get()
		out = append(out, FlowView{
			Tuple:     t,
			L4Proto:   f.L4Proto.String(),
			SrcIP:     model.Uint32ToIP(t.SrcAddr),
			DstIP:     model.Uint32ToIP(t.DstAddr),
			SrcPort:   f.SrcPort,
			DstPort:   f.DstPort,
			SrcMAC:    macString(src.MAC),
			DstMAC:    macString(dst.MAC),
			Protocol:  e.classifier.Name(f.Protocol),
			Class:     f.Protocol,
			Completed: f.DetectionCompleted(),
			SNI:       f.DPI.SNI,
			JA3:       f.DPI.JA3,
			HTTPHost:  f.DPI.HTTPHost,
			DNSQuery:  f.DPI.DNSQuery,
			Stats:     statsView(&f.Stats),
		})
		return true
	})
	return out
}

// Hosts returns a copy of every tracked host.
func (e *Engine) Hosts() []HostView {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]HostView, 0, e.hosts.Len())
	e.hosts.Range(func(_ uint32, h *statistic.Host) bool {
		out = append(out, HostView{
			IP:    append(net.IP(nil), h.IP...),
			MAC:   macString(h.MAC),
			Flows: h.Refs(),
			Stats: statsView(&h.Stats),
		})
		return true
	})
	return out
}

// Totals returns the engine-wide counters.
func (e *Engine) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.totals
	t.ActiveFlows = e.flows.Len()
	t.ActiveHosts = e.hosts.Len()
	t.LastPacket = e.lastPacket
	return t
}

// SortKey orders flow and host listings.
type SortKey string

const (
	SortByBytes      SortKey = "bytes"
	SortByPackets    SortKey = "packets"
	SortByThroughput SortKey = "throughput"
)

// ParseSortKey returns the key named s, defaulting to SortByBytes.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(s) {
	case SortByBytes, SortByPackets, SortByThroughput:
		return SortKey(s), true
	case "":
		return SortByBytes, true
	}
	return SortByBytes, false
}

func (k SortKey) less(a, b StatsView) bool {
	switch k {
	case SortByPackets:
		return a.Packets > b.Packets
	case SortByThroughput:
		return a.Throughput > b.Throughput
	default:
		return a.Bytes > b.Bytes
	}
}

// TopFlows sorts flows in place, largest first, and returns at most limit of
// them. limit <= 0 returns all.
func TopFlows(flows []FlowView, by SortKey, limit int) []FlowView {
	sort.SliceStable(flows, func(i, j int) bool { return by.less(flows[i].Stats, flows[j].Stats) })
	if limit > 0 && len(flows) > limit {
		flows = flows[:limit]
	}
	return flows
}

// TopHosts sorts hosts in place, largest first, and returns at most limit of
// them. limit <= 0 returns all.
func TopHosts(hosts []HostView, by SortKey, limit int) []HostView {
	sort.SliceStable(hosts, func(i, j int) bool { return by.less(hosts[i].Stats, hosts[j].Stats) })
	if limit > 0 && len(hosts) > limit {
		hosts = hosts[:limit]
	}
	return hosts
}
