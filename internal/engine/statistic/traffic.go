package statistic

import (
	"time"

	"Go2NetTop/internal/core/model"
)

// TrafficStats holds the packet and byte counters of a flow or a host.
type TrafficStats struct {
	Src2DstPackets uint64
	Dst2SrcPackets uint64
	Src2DstBytes   uint64
	Dst2SrcBytes   uint64

	// LastSeen is the timestamp of the most recent accounted packet. It stays
	// zero until the first packet.
	LastSeen time.Time
	// Throughput is in bytes per second, as of the last Update.
	Throughput float64

	lastBytes  uint64
	lastUpdate time.Time
}

// AccountPacket adds one packet of length bytes travelling in dir.
func (s *TrafficStats) AccountPacket(ts time.Time, dir model.Direction, length uint32) {
	if dir.IsSrc2Dst() {
		s.Src2DstPackets++
		s.Src2DstBytes += uint64(length)
	} else {
		s.Dst2SrcPackets++
		s.Dst2SrcBytes += uint64(length)
	}
	s.LastSeen = ts
}

// Packets returns the packet count in both directions.
func (s *TrafficStats) Packets() uint64 {
	return s.Src2DstPackets + s.Dst2SrcPackets
}

// Bytes returns the byte count in both directions.
func (s *TrafficStats) Bytes() uint64 {
	return s.Src2DstBytes + s.Dst2SrcBytes
}

// Update samples the throughput since the previous call. The first call only
// records the baseline.
func (s *TrafficStats) Update(now time.Time) {
	bytes := s.Bytes()
	if s.lastUpdate.IsZero() {
		s.lastBytes = bytes
		s.lastUpdate = now
		return
	}

	elapsed := now.Sub(s.lastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}
	s.Throughput = float64(bytes-s.lastBytes) / elapsed
	s.lastBytes = bytes
	s.lastUpdate = now
}
