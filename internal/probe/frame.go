// Package probe carries raw captured frames between a capturing probe and
// the monitor over NATS. The message body is the frame; capture metadata
// travels in headers.
package probe

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/nats-io/nats.go"

	"Go2NetTop/internal/core/model"
	"Go2NetTop/pkg/pcap"
)

// Header keys.
const (
	HeaderTimestamp  = "Nettop-Timestamp"
	HeaderWireLength = "Nettop-Wire-Length"
	HeaderLinkType   = "Nettop-Link-Type"
)

// EncodeFrame builds the message carrying frame on subject.
func EncodeFrame(subject string, frame pcap.Frame, linkType layers.LinkType) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = frame.Data
	msg.Header.Set(HeaderTimestamp, strconv.FormatInt(frame.Header.Timestamp.UnixNano(), 10))
	msg.Header.Set(HeaderWireLength, strconv.FormatUint(uint64(frame.Header.WireLength), 10))
	msg.Header.Set(HeaderLinkType, strconv.Itoa(int(linkType)))
	return msg
}

// DecodeFrame reverses EncodeFrame. A missing wire length defaults to the
// captured length.
func DecodeFrame(msg *nats.Msg) (pcap.Frame, layers.LinkType, error) {
	ns, err := strconv.ParseInt(msg.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return pcap.Frame{}, 0, fmt.Errorf("bad %s header: %w", HeaderTimestamp, err)
	}
	linkType, err := strconv.ParseUint(msg.Header.Get(HeaderLinkType), 10, 8)
	if err != nil {
		return pcap.Frame{}, 0, fmt.Errorf("bad %s header: %w", HeaderLinkType, err)
	}

	wireLen := uint64(len(msg.Data))
	if v := msg.Header.Get(HeaderWireLength); v != "" {
		if wireLen, err = strconv.ParseUint(v, 10, 32); err != nil {
			return pcap.Frame{}, 0, fmt.Errorf("bad %s header: %w", HeaderWireLength, err)
		}
	}

	frame := pcap.Frame{
		Header: model.PacketHeader{Timestamp: time.Unix(0, ns), WireLength: uint32(wireLen)},
		Data:   msg.Data,
	}
	return frame, layers.LinkType(linkType), nil
}
