package pcap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng section header block type.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// FileSource replays a pcap or pcapng file.
type FileSource struct {
	file     *os.File
	reader   gopacket.PacketDataSource
	linkType layers.LinkType
}

// NewFileSource opens a capture file. The format is detected from its first
// bytes.
func NewFileSource(filePath string) (*FileSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file header: %w", err)
	}

	s := &FileSource{file: f}
	if bytes.Equal(head, ngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read pcapng file: %w", err)
		}
		s.reader, s.linkType = ng, ng.LinkType()
	} else {
		r, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read pcap file: %w", err)
		}
		s.reader, s.linkType = r, r.LinkType()
	}

	log.Printf("Opened capture file '%s' with link type %s.", filePath, s.linkType)
	return s, nil
}

// LinkType returns the link type of the file.
func (s *FileSource) LinkType() layers.LinkType {
	return s.linkType
}

// ReadPackets replays every frame of the file.
func (s *FileSource) ReadPackets(ctx context.Context, out chan<- Frame) error {
	if err := pump(ctx, s.reader, out, nil); err != nil {
		return fmt.Errorf("failed to read capture file: %w", err)
	}
	return nil
}

// Close closes the file.
func (s *FileSource) Close() {
	s.file.Close()
}
