package probe

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/google/gopacket/layers"
	"github.com/nats-io/nats.go"

	"Go2NetTop/internal/config"
	"Go2NetTop/pkg/pcap"
)

// Subscriber receives frames published by a probe. It is a pcap.Source.
type Subscriber struct {
	nc       *nats.Conn
	subject  string
	linkType layers.LinkType
	buffer   int

	rejected atomic.Uint64
}

var _ pcap.Source = (*Subscriber)(nil)

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.ProbeConfig, buffer int) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("nettop-monitor"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	if buffer <= 0 {
		buffer = 1024
	}
	return &Subscriber{nc: nc, subject: cfg.Subject, linkType: layers.LinkType(cfg.LinkType), buffer: buffer}, nil
}

// LinkType returns the link type frames are expected in.
func (s *Subscriber) LinkType() layers.LinkType {
	return s.linkType
}

// Rejected returns how many messages were undecodable or of another link
// type.
func (s *Subscriber) Rejected() uint64 {
	return s.rejected.Load()
}

// ReadPackets forwards received frames to out until ctx is done.
func (s *Subscriber) ReadPackets(ctx context.Context, out chan<- pcap.Frame) error {
	msgs := make(chan *nats.Msg, s.buffer)
	sub, err := s.nc.ChanSubscribe(s.subject, msgs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	log.Printf("Subscribed to '%s'. Waiting for frames...", s.subject)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			frame, ok := s.accept(msg)
			if !ok {
				continue
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Subscriber) accept(msg *nats.Msg) (pcap.Frame, bool) {
	frame, linkType, err := DecodeFrame(msg)
	if err == nil && linkType != s.linkType {
		err = errLinkType{got: linkType, want: s.linkType}
	}
	if err != nil {
		if s.rejected.Add(1) == 1 {
			log.Printf("Rejecting frame from '%s': %v", msg.Subject, err)
		}
		return pcap.Frame{}, false
	}
	return frame, true
}

type errLinkType struct {
	got, want layers.LinkType
}

func (e errLinkType) Error() string {
	return "link type " + e.got.String() + ", expected " + e.want.String()
}

// Close closes the NATS connection.
func (s *Subscriber) Close() {
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}
