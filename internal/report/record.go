// Package report carries the per-packet observability records emitted by the
// flow engine.
package report

import (
	"fmt"
	"net"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"Go2NetTop/internal/core/model"
)

// FlowRecord describes a flow right after one of its packets was accounted.
type FlowRecord struct {
	Timestamp time.Time
	Tuple     model.PacketTuple
	Protocol  string
	Completed bool

	Src2DstPackets uint64
	Dst2SrcPackets uint64
	Src2DstBytes   uint64
	Dst2SrcBytes   uint64
}

// Packets returns the packet count of the flow in both directions.
func (r FlowRecord) Packets() uint64 {
	return r.Src2DstPackets + r.Dst2SrcPackets
}

// Bytes returns the byte count of the flow in both directions.
func (r FlowRecord) Bytes() uint64 {
	return r.Src2DstBytes + r.Dst2SrcBytes
}

func (r FlowRecord) String() string {
	return fmt.Sprintf("%s [%s] packets=%d/%d bytes=%d/%d",
		r.Tuple, r.Protocol, r.Src2DstPackets, r.Dst2SrcPackets, r.Src2DstBytes, r.Dst2SrcBytes)
}

// ToStruct encodes the record as a protobuf Struct.
func (r FlowRecord) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"timestamp":       r.Timestamp.UTC().Format(time.RFC3339Nano),
		"proto":           float64(r.Tuple.Proto),
		"src_ip":          model.Uint32ToIP(r.Tuple.SrcAddr).String(),
		"dst_ip":          model.Uint32ToIP(r.Tuple.DstAddr).String(),
		"src_port":        float64(r.Tuple.SrcPort),
		"dst_port":        float64(r.Tuple.DstPort),
		"protocol":        r.Protocol,
		"completed":       r.Completed,
		"src2dst_packets": float64(r.Src2DstPackets),
		"dst2src_packets": float64(r.Dst2SrcPackets),
		"src2dst_bytes":   float64(r.Src2DstBytes),
		"dst2src_bytes":   float64(r.Dst2SrcBytes),
	})
}

// FlowRecordFromStruct decodes a record produced by ToStruct.
func FlowRecordFromStruct(s *structpb.Struct) (FlowRecord, error) {
	f := s.GetFields()
	num := func(key string) float64 { return f[key].GetNumberValue() }

	var r FlowRecord
	ts, err := time.Parse(time.RFC3339Nano, f["timestamp"].GetStringValue())
	if err != nil {
		return r, fmt.Errorf("failed to parse record timestamp: %w", err)
	}
	src := model.IPToUint32(net.ParseIP(f["src_ip"].GetStringValue()))
	dst := model.IPToUint32(net.ParseIP(f["dst_ip"].GetStringValue()))

	r = FlowRecord{
		Timestamp: ts,
		Tuple: model.PacketTuple{
			Proto:   uint8(num("proto")),
			SrcAddr: src,
			DstAddr: dst,
			SrcPort: uint16(num("src_port")),
			DstPort: uint16(num("dst_port")),
		},
		Protocol:       f["protocol"].GetStringValue(),
		Completed:      f["completed"].GetBoolValue(),
		Src2DstPackets: uint64(num("src2dst_packets")),
		Dst2SrcPackets: uint64(num("dst2src_packets")),
		Src2DstBytes:   uint64(num("src2dst_bytes")),
		Dst2SrcBytes:   uint64(num("dst2src_bytes")),
	}
	return r, nil
}
