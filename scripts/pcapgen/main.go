package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/miekg/dns"
)

var (
	clientMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	routerMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

var httpHosts = []string{"www.youtube.com", "github.com", "www.netflix.com", "intranet.local"}

// generator writes synthetic client/server conversations.
type generator struct {
	w   *pcapgo.Writer
	rnd *rand.Rand
	now time.Time
	n   int
}

func newGenerator(out io.Writer, seed int64, start time.Time) (*generator, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &generator{w: w, rnd: rand.New(rand.NewSource(seed)), now: start}, nil
}

func (g *generator) write(toServer bool, client, server net.IP, l4 gopacket.SerializableLayer, payload []byte) error {
	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: routerMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{SrcIP: client, DstIP: server, Version: 4, TTL: 64}
	if !toServer {
		eth.SrcMAC, eth.DstMAC = routerMAC, clientMAC
		ip.SrcIP, ip.DstIP = server, client
	}
	switch l := l4.(type) {
	case *layers.TCP:
		ip.Protocol = layers.IPProtocolTCP
		l.SetNetworkLayerForChecksum(ip)
	case *layers.UDP:
		ip.Protocol = layers.IPProtocolUDP
		l.SetNetworkLayerForChecksum(ip)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, l4, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("failed to serialize layers: %w", err)
	}

	g.now = g.now.Add(time.Duration(g.rnd.Intn(50)+1) * time.Millisecond)
	ci := gopacket.CaptureInfo{Timestamp: g.now, CaptureLength: len(buf.Bytes()), Length: len(buf.Bytes())}
	if err := g.w.WritePacket(ci, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	g.n++
	return nil
}

func (g *generator) ephemeralPort() uint16 {
	return uint16(g.rnd.Intn(65535-49152) + 49152)
}

func (g *generator) randomIP() net.IP {
	return net.IP{byte(g.rnd.Intn(223) + 1), byte(g.rnd.Intn(256)), byte(g.rnd.Intn(256)), byte(g.rnd.Intn(254) + 1)}
}

// tcpConversation writes a request, a few response segments and acks.
func (g *generator) tcpConversation(client, server net.IP, dport uint16, request []byte, segments int) error {
	sport := g.ephemeralPort()
	seq, ack := g.rnd.Uint32(), g.rnd.Uint32()
	tcp := func(toServer bool) *layers.TCP {
		t := &layers.TCP{SrcPort: layers.TCPPort(sport), DstPort: layers.TCPPort(dport), Seq: seq, Ack: ack, ACK: true, PSH: true, Window: 14600}
		if !toServer {
			t.SrcPort, t.DstPort = t.DstPort, t.SrcPort
			t.Seq, t.Ack = ack, seq
		}
		return t
	}

	if err := g.write(true, client, server, tcp(true), request); err != nil {
		return err
	}
	for i := 0; i < segments; i++ {
		body := make([]byte, g.rnd.Intn(1300)+100)
		g.rnd.Read(body)
		if err := g.write(false, client, server, tcp(false), body); err != nil {
			return err
		}
		if err := g.write(true, client, server, tcp(true), nil); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) httpConversation(client net.IP) error {
	host := httpHosts[g.rnd.Intn(len(httpHosts))]
	req := []byte("GET / HTTP/1.1\r\nHost: " + host + "\r\nUser-Agent: pcapgen\r\n\r\n")
	return g.tcpConversation(client, g.randomIP(), 80, req, g.rnd.Intn(4)+1)
}

func (g *generator) sshConversation(client net.IP) error {
	return g.tcpConversation(client, g.randomIP(), 22, []byte("SSH-2.0-OpenSSH_9.6\r\n"), 2)
}

func (g *generator) dnsExchange(client, resolver net.IP) error {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(httpHosts[g.rnd.Intn(len(httpHosts))]), dns.TypeA)
	query, err := q.Pack()
	if err != nil {
		return err
	}
	r := new(dns.Msg)
	r.SetReply(q)
	r.Answer = append(r.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: q.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   g.randomIP(),
	})
	reply, err := r.Pack()
	if err != nil {
		return err
	}

	sport := g.ephemeralPort()
	if err := g.write(true, client, resolver, &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: 53}, query); err != nil {
		return err
	}
	return g.write(false, client, resolver, &layers.UDP{SrcPort: 53, DstPort: layers.UDPPort(sport)}, reply)
}

// conversations writes count random conversations from a handful of clients.
func (g *generator) conversations(count int) error {
	resolver := net.IP{192, 168, 1, 1}
	for i := 0; i < count; i++ {
		client := net.IP{192, 168, 1, byte(g.rnd.Intn(8) + 10)}
		var err error
		switch g.rnd.Intn(3) {
		case 0:
			err = g.httpConversation(client)
		case 1:
			err = g.dnsExchange(client, resolver)
		default:
			err = g.sshConversation(client)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	count := flag.Int("c", 100, "Number of conversations to generate")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	g, err := newGenerator(f, *seed, time.Now())
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Generating %d conversations into %s...", *count, *outputFile)
	if err := g.conversations(*count); err != nil {
		log.Fatal(err)
	}
	log.Printf("Successfully generated %d packets into %s.", g.n, *outputFile)
}
