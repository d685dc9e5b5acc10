// Package flowengine turns captured frames into flows and hosts, accounts
// their traffic and drives protocol detection.
package flowengine

import (
	"log"
	"sync"
	"time"

	"Go2NetTop/internal/core/model"
	"Go2NetTop/internal/dpi"
	"Go2NetTop/internal/engine/statistic"
	"Go2NetTop/internal/engine/table"
	"Go2NetTop/internal/metrics"
	"Go2NetTop/internal/report"
)

const (
	DefaultFlowIdleTimeout = 60 * time.Second
	DefaultHostIdleTimeout = 300 * time.Second
	DefaultGiveUpPackets   = 8
)

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	FlowIdleTimeout time.Duration
	HostIdleTimeout time.Duration
	// MaxFlows and MaxHosts bound the tables; 0 is unbounded.
	MaxFlows int
	MaxHosts int
	// GiveUpPackets is the flow packet count at which payload inspection
	// stops and the port based guess becomes final.
	GiveUpPackets uint64
}

func (c Config) withDefaults() Config {
	if c.FlowIdleTimeout <= 0 {
		c.FlowIdleTimeout = DefaultFlowIdleTimeout
	}
	if c.HostIdleTimeout <= 0 {
		c.HostIdleTimeout = DefaultHostIdleTimeout
	}
	if c.GiveUpPackets == 0 {
		c.GiveUpPackets = DefaultGiveUpPackets
	}
	return c
}

// Parser extracts the tuple of a frame.
type Parser interface {
	Parse(data []byte) (model.ParsedPacket, bool)
}

// Recorder receives engine events. *metrics.Metrics implements it.
type Recorder interface {
	PacketProcessed(length uint32)
	PacketDropped(reason string)
	EntryCreated(table string)
	Purged(table string, removed, active int)
	Classified(method string)
}

type nopRecorder struct{}

func (nopRecorder) PacketProcessed(uint32) {}
func (nopRecorder) PacketDropped(string) {}
func (nopRecorder) EntryCreated(string) {}
func (nopRecorder) Purged(string, int, int) {}
func (nopRecorder) Classified(string) {}

// Table names used in metrics and logs.
const (
	FlowTable = "flows"
	HostTable = "hosts"
)

// Engine owns the flow and host tables. All methods are safe to call from
// different goroutines; they are serialized on one lock so the tables only
// ever see a single writer.
type Engine struct {
	mu sync.Mutex

	cfg        Config
	parser     Parser
	classifier dpi.Classifier
	sink       report.Sink
	rec        Recorder

	flows *table.Table[model.PacketTuple, *statistic.Flow]
	hosts *table.Table[uint32, *statistic.Host]

	totals     Totals
	lastPacket time.Time
}

// New creates an engine. sink and rec may be nil.
func New(cfg Config, parser Parser, classifier dpi.Classifier, sink report.Sink, rec Recorder) *Engine {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = report.Discard
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Engine{
		cfg:        cfg,
		parser:     parser,
		classifier: classifier,
		sink:       sink,
		rec:        rec,
		flows:      table.New[model.PacketTuple, *statistic.Flow](FlowTable, cfg.FlowIdleTimeout, cfg.MaxFlows),
		hosts:      table.New[uint32, *statistic.Host](HostTable, cfg.HostIdleTimeout, cfg.MaxHosts),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// ProcessPacket accounts one captured frame. Frames that do not carry a
// valid IPv4 TCP or UDP tuple are dropped without touching any state. It
// reports whether the frame was accounted.
func (e *Engine) ProcessPacket(hdr model.PacketHeader, data []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	pkt, ok := e.parser.Parse(data)
	if !ok || !pkt.Tuple.Valid() {
		e.drop(metrics.DropUnparsed)
		return false
	}
	tuple := pkt.Tuple

	ts := hdr.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	length := hdr.WireLength
	if length == 0 {
		length = uint32(len(data))
	}

	src, err := e.hosts.GetOrInsert(tuple.SrcAddr, func() *statistic.Host {
		e.hostCreated()
		return statistic.NewHost(tuple.SrcAddr, pkt.SrcMAC)
	})
	if err != nil {
		e.drop(metrics.DropHostTable)
		return false
	}
	defer src.Release()

	dst, err := e.hosts.GetOrInsert(tuple.DstAddr, func() *statistic.Host {
		e.hostCreated()
		return statistic.NewHost(tuple.DstAddr, pkt.DstMAC)
	})
	if err != nil {
		e.drop(metrics.DropHostTable)
		return false
	}
	defer dst.Release()

	fh, err := e.flows.GetOrInsert(e.flowKey(tuple), func() *statistic.Flow {
		e.totals.FlowsCreated++
		e.rec.EntryCreated(FlowTable)
		return statistic.NewFlow(tuple, src, dst)
	})
	if err != nil {
		e.drop(metrics.DropFlowTable)
		return false
	}
	defer fh.Release()
	flow := fh.Get()

	if flow.JustCreated() {
		if len(pkt.SrcMAC) > 0 {
			src.Get().SetMAC(pkt.SrcMAC)
		}
		if len(pkt.DstMAC) > 0 {
			dst.Get().SetMAC(pkt.DstMAC)
		}
	}

	dir := flow.Direction(tuple)
	flow.Stats.AccountPacket(ts, dir, length)
	src.Get().Stats.AccountPacket(ts, dir, length)
	dst.Get().Stats.AccountPacket(ts, dir, length)

	if !flow.DetectionCompleted() {
		e.classify(flow, pkt.Payload, ts, dir)
	}

	e.totals.PacketsProcessed++
	e.totals.BytesProcessed += uint64(length)
	if ts.After(e.lastPacket) {
		e.lastPacket = ts
	}
	e.rec.PacketProcessed(length)

	e.sink.Emit(report.FlowRecord{
		Timestamp:      ts,
		Tuple:          flow.Tuple,
		Protocol:       e.classifier.Name(flow.Protocol),
		Completed:      flow.DetectionCompleted(),
		Src2DstPackets: flow.Stats.Src2DstPackets,
		Dst2SrcPackets: flow.Stats.Dst2SrcPackets,
		Src2DstBytes:   flow.Stats.Src2DstBytes,
		Dst2SrcBytes:   flow.Stats.Dst2SrcBytes,
	})
	return true
}

// flowKey returns the key of the flow a packet belongs to. A flow stays keyed
// by the tuple of its first packet; replies are matched on the reversed tuple.
func (e *Engine) flowKey(tuple model.PacketTuple) model.PacketTuple {
	if _, ok := e.flows.Get(tuple); ok {
		return tuple
	}
	if _, ok := e.flows.Get(tuple.Reverse()); ok {
		return tuple.Reverse()
	}
	return tuple
}

// classify feeds the packet payload to the classifier and falls back to the
// port based guess once the flow reaches the give-up threshold.
func (e *Engine) classify(flow *statistic.Flow, payload []byte, ts time.Time, dir model.Direction) {
	flow.SetProtocol(e.classifier.Dissect(flow.DPI, payload, ts, dir.IsSrc2Dst()))
	if flow.DetectionCompleted() {
		e.rec.Classified("dpi")
		return
	}
	if flow.Stats.Packets() < e.cfg.GiveUpPackets {
		return
	}

	t := flow.Tuple
	flow.SetDetectedProtocol(e.classifier.Guess(flow.L4Proto, t.SrcAddr, t.SrcPort, t.DstAddr, t.DstPort))
	e.rec.Classified("guess")
}

func (e *Engine) hostCreated() {
	e.totals.HostsCreated++
	e.rec.EntryCreated(HostTable)
}

func (e *Engine) drop(reason string) {
	e.totals.PacketsDropped++
	e.rec.PacketDropped(reason)
}

// PurgeIdle evicts idle, unreferenced flows and then hosts. Flows go first so
// the host shares they held are given back within the same pass.
func (e *Engine) PurgeIdle(now time.Time) (flows, hosts int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	flows = e.flows.PurgeIdle(now)
	hosts = e.hosts.PurgeIdle(now)

	e.totals.FlowsPurged += uint64(flows)
	e.totals.HostsPurged += uint64(hosts)
	e.rec.Purged(FlowTable, flows, e.flows.Len())
	e.rec.Purged(HostTable, hosts, e.hosts.Len())
	if flows > 0 || hosts > 0 {
		log.Printf("Purged %d idle flows and %d idle hosts, %d flows and %d hosts remain.",
			flows, hosts, e.flows.Len(), e.hosts.Len())
	}
	return flows, hosts
}

// UpdateThroughput samples the throughput of every flow and host.
func (e *Engine) UpdateThroughput(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.flows.Range(func(_ model.PacketTuple, f *statistic.Flow) bool {
		f.Stats.Update(now)
		return true
	})
	e.hosts.Range(func(_ uint32, h *statistic.Host) bool {
		h.Stats.Update(now)
		return true
	})
}

// LastPacketTime returns the latest packet timestamp accounted so far.
func (e *Engine) LastPacketTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPacket
}

// ProtocolName returns the display name of a classification.
func (e *Engine) ProtocolName(c dpi.Classification) string {
	return e.classifier.Name(c)
}
