package probe

import (
	"log"

	"github.com/google/gopacket/layers"
	"github.com/nats-io/nats.go"

	"Go2NetTop/internal/config"
	"Go2NetTop/pkg/pcap"
)

// Publisher is responsible for publishing captured frames to a NATS subject.
type Publisher struct {
	nc       *nats.Conn
	subject  string
	linkType layers.LinkType
}

// NewPublisher creates a new NATS publisher for frames of linkType.
func NewPublisher(cfg config.ProbeConfig, linkType layers.LinkType) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("nettop-probe"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject, linkType: linkType}, nil
}

// Publish sends one frame to the configured NATS subject.
func (p *Publisher) Publish(frame pcap.Frame) error {
	return p.nc.PublishMsg(EncodeFrame(p.subject, frame, p.linkType))
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
