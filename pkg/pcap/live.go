package pcap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// LiveOptions configures a live capture.
type LiveOptions struct {
	Interface   string
	Snaplen     int32
	Promiscuous bool
	BPFFilter   string
	// ReadTimeout bounds each read so that cancellation is noticed.
	ReadTimeout time.Duration
}

// LiveSource captures from a network interface through libpcap.
type LiveSource struct {
	handle *pcap.Handle
}

// NewLiveSource opens the interface for capture.
func NewLiveSource(opts LiveOptions) (*LiveSource, error) {
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}
	handle, err := pcap.OpenLive(opts.Interface, opts.Snaplen, opts.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", opts.Interface, err)
	}
	if opts.BPFFilter != "" {
		if err := handle.SetBPFFilter(opts.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to apply BPF filter %q: %w", opts.BPFFilter, err)
		}
	}

	log.Printf("Capture started on interface %s (link type %s).", opts.Interface, handle.LinkType())
	return &LiveSource{handle: handle}, nil
}

// LinkType returns the link type of the interface.
func (s *LiveSource) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

// ReadPackets captures until ctx is done.
func (s *LiveSource) ReadPackets(ctx context.Context, out chan<- Frame) error {
	retry := func(err error) bool {
		return errors.Is(err, pcap.NextErrorTimeoutExpired)
	}
	if err := pump(ctx, s.handle, out, retry); err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}
	return nil
}

// Stats returns the libpcap receive and drop counters.
func (s *LiveSource) Stats() (received, dropped int, err error) {
	st, err := s.handle.Stats()
	if err != nil {
		return 0, 0, err
	}
	return st.PacketsReceived, st.PacketsDropped + st.PacketsIfDropped, nil
}

// Close closes the capture handle.
func (s *LiveSource) Close() {
	s.handle.Close()
}
