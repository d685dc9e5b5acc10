package pcap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func writeCapture(t *testing.T, n int) (string, []time.Time) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create capture file: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(1600, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("Failed to write file header: %v", err)
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	udp := &layers.UDP{SrcPort: 4000, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("Failed to set network layer: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("hello")); err != nil {
		t.Fatalf("Failed to serialize packet: %v", err)
	}
	data := buf.Bytes()

	base := time.Unix(1_700_000_000, 0).UTC()
	var stamps []time.Time
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		stamps = append(stamps, ts)
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data) + 4}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatalf("Failed to write packet: %v", err)
		}
	}
	return path, stamps
}

func TestFileSource_ReadPackets(t *testing.T) {
	path, stamps := writeCapture(t, 3)

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("Failed to open file source: %v", err)
	}
	defer src.Close()

	if src.LinkType() != layers.LinkTypeEthernet {
		t.Errorf("Expected Ethernet link type, got %s", src.LinkType())
	}

	out := make(chan Frame, 10)
	if err := src.ReadPackets(context.Background(), out); err != nil {
		t.Fatalf("ReadPackets failed: %v", err)
	}
	close(out)

	count := 0
	for f := range out {
		if !f.Header.Timestamp.Equal(stamps[count]) {
			t.Errorf("Frame %d: timestamp %s, want %s", count, f.Header.Timestamp, stamps[count])
		}
		if int(f.Header.WireLength) != len(f.Data)+4 {
			t.Errorf("Frame %d: wire length %d should be the original length", count, f.Header.WireLength)
		}
		count++
	}
	if count != 3 {
		t.Errorf("Expected to read 3 packets, but got %d", count)
	}
}

func TestFileSource_Cancel(t *testing.T) {
	path, _ := writeCapture(t, 5)

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("Failed to open file source: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nobody reads: the cancelled context must unblock the sender.
	if err := src.ReadPackets(ctx, make(chan Frame)); err != nil {
		t.Fatalf("Expected cancellation to end the read cleanly, got %v", err)
	}
}

func TestNewFileSource_Errors(t *testing.T) {
	if _, err := NewFileSource(filepath.Join(t.TempDir(), "missing.pcap")); err == nil {
		t.Errorf("Expected an error for a missing file")
	}

	junk := filepath.Join(t.TempDir(), "junk.pcap")
	if err := os.WriteFile(junk, []byte("definitely not a capture file"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileSource(junk); err == nil {
		t.Errorf("Expected an error for a file with a bad header")
	}
}
