// Package pcap provides the frame sources the monitor reads from: live
// interfaces and capture files.
package pcap

import (
	"context"
	"errors"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"Go2NetTop/internal/core/model"
)

// Frame is one captured link-layer frame with its capture metadata.
type Frame struct {
	Header model.PacketHeader
	Data   []byte
}

// Source produces frames of a single link type.
type Source interface {
	LinkType() layers.LinkType
	// ReadPackets sends frames to out until the source is exhausted, ctx is
	// done or a read fails. It does not close out.
	ReadPackets(ctx context.Context, out chan<- Frame) error
	Close()
}

// pump reads frames from r and forwards them to out. Each frame must own its
// data; the readers used here allocate a fresh buffer per packet.
func pump(ctx context.Context, r gopacket.PacketDataSource, out chan<- Frame, retry func(error) bool) error {
	for {
		data, ci, err := r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if retry != nil && retry(err) {
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			return err
		}

		frame := Frame{
			Header: model.PacketHeader{Timestamp: ci.Timestamp, WireLength: uint32(ci.Length)},
			Data:   data,
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}
