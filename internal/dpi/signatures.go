package dpi

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/dreadl0ck/ja3"
	"github.com/dreadl0ck/tlsx"
	"github.com/miekg/dns"
)

// dissector inspects one payload and reports a classification, or Unknown
// when the payload does not match.
type dissector func(state *State, payload []byte) Classification

// serviceSuffixes maps host name suffixes to the service they belong to.
var serviceSuffixes = []struct {
	suffix  string
	service Protocol
}{
	{"youtube.com", ProtoYouTube},
	{"googlevideo.com", ProtoYouTube},
	{"ytimg.com", ProtoYouTube},
	{"google.com", ProtoGoogle},
	{"googleapis.com", ProtoGoogle},
	{"gstatic.com", ProtoGoogle},
	{"facebook.com", ProtoFacebook},
	{"fbcdn.net", ProtoFacebook},
	{"netflix.com", ProtoNetflix},
	{"nflxvideo.net", ProtoNetflix},
	{"amazon.com", ProtoAmazon},
	{"amazonaws.com", ProtoAmazon},
	{"microsoft.com", ProtoMicrosoft},
	{"live.com", ProtoMicrosoft},
	{"office.com", ProtoMicrosoft},
	{"windows.com", ProtoMicrosoft},
	{"apple.com", ProtoApple},
	{"icloud.com", ProtoApple},
	{"cloudflare.com", ProtoCloudflare},
	{"github.com", ProtoGitHub},
	{"githubusercontent.com", ProtoGitHub},
	{"whatsapp.com", ProtoWhatsApp},
	{"whatsapp.net", ProtoWhatsApp},
}

// serviceForHost returns the service a host name belongs to.
func serviceForHost(host string) Protocol {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, s := range serviceSuffixes {
		if host == s.suffix || strings.HasSuffix(host, "."+s.suffix) {
			return s.service
		}
	}
	return ProtoUnknown
}

// overCarrier classifies a service found on a carrier protocol.
func overCarrier(carrier Protocol, host string) Classification {
	if svc := serviceForHost(host); svc != ProtoUnknown {
		return Classification{Master: carrier, App: svc}
	}
	return Classification{App: carrier}
}

func dissectTLS(state *State, payload []byte) Classification {
	// Record header: handshake (0x16), major version 3.
	if len(payload) < 6 || payload[0] != 0x16 || payload[1] != 0x03 {
		return Unknown
	}

	switch payload[5] {
	case 0x01: // ClientHello
		var hello tlsx.ClientHelloBasic
		if err := hello.Unmarshal(payload); err == nil {
			state.SNI = hello.SNI
			state.JA3 = ja3.DigestHex(&hello)
		}
		return overCarrier(ProtoTLS, state.SNI)
	case 0x02: // ServerHello
		if state.SNI != "" {
			return overCarrier(ProtoTLS, state.SNI)
		}
		return Classification{App: ProtoTLS}
	}
	return Unknown
}

var httpMethods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("HEAD "), []byte("PUT "),
	[]byte("DELETE "), []byte("OPTIONS "), []byte("PATCH "), []byte("CONNECT "),
}

func dissectHTTP(state *State, payload []byte) Classification {
	isRequest := false
	for _, m := range httpMethods {
		if bytes.HasPrefix(payload, m) {
			isRequest = true
			break
		}
	}
	if !isRequest && !bytes.HasPrefix(payload, []byte("HTTP/1.")) {
		return Unknown
	}

	if isRequest {
		for _, line := range bytes.Split(payload, []byte("\r\n")) {
			if len(line) == 0 {
				break
			}
			if len(line) > 5 && strings.EqualFold(string(line[:5]), "host:") {
				state.HTTPHost = strings.TrimSpace(string(line[5:]))
				break
			}
		}
	}
	return overCarrier(ProtoHTTP, state.HTTPHost)
}

func dissectDNS(state *State, payload []byte) Classification {
	msg := parseDNS(payload)
	if msg == nil && len(payload) > 2 && int(binary.BigEndian.Uint16(payload)) == len(payload)-2 {
		// DNS over TCP carries a two byte length prefix.
		msg = parseDNS(payload[2:])
	}
	if msg == nil {
		return Unknown
	}

	state.DNSQuery = strings.TrimSuffix(msg.Question[0].Name, ".")
	return Classification{App: ProtoDNS}
}

func parseDNS(payload []byte) *dns.Msg {
	if len(payload) < 12 {
		return nil
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return nil
	}
	if len(msg.Question) != 1 || msg.Opcode != dns.OpcodeQuery {
		return nil
	}
	if q := msg.Question[0]; q.Qclass != dns.ClassINET && q.Qclass != dns.ClassANY {
		return nil
	}
	return msg
}

func dissectSSH(_ *State, payload []byte) Classification {
	if bytes.HasPrefix(payload, []byte("SSH-")) {
		return Classification{App: ProtoSSH}
	}
	return Unknown
}

// dissectMail recognises mail and file transfer greetings and commands.
func dissectMail(_ *State, payload []byte) Classification {
	switch {
	case bytes.HasPrefix(payload, []byte("220 ")) || bytes.HasPrefix(payload, []byte("220-")):
		banner := strings.ToUpper(string(payload[:min(len(payload), 128)]))
		if strings.Contains(banner, "SMTP") {
			return Classification{App: ProtoSMTP}
		}
		if strings.Contains(banner, "FTP") {
			return Classification{App: ProtoFTP}
		}
	case bytes.HasPrefix(payload, []byte("EHLO ")) || bytes.HasPrefix(payload, []byte("HELO ")):
		return Classification{App: ProtoSMTP}
	case bytes.HasPrefix(payload, []byte("+OK")):
		return Classification{App: ProtoPOP3}
	case bytes.HasPrefix(payload, []byte("* OK")):
		return Classification{App: ProtoIMAP}
	}
	return Unknown
}

func dissectBitTorrent(_ *State, payload []byte) Classification {
	if bytes.HasPrefix(payload, []byte("\x13BitTorrent protocol")) {
		return Classification{App: ProtoBitTorrent}
	}
	return Unknown
}

const stunMagicCookie = 0x2112A442

func dissectSTUN(_ *State, payload []byte) Classification {
	if len(payload) < 20 || payload[0]&0xC0 != 0 {
		return Unknown
	}
	if binary.BigEndian.Uint32(payload[4:8]) != stunMagicCookie {
		return Unknown
	}
	if int(binary.BigEndian.Uint16(payload[2:4]))+20 != len(payload) {
		return Unknown
	}
	return Classification{App: ProtoSTUN}
}

func dissectQUIC(_ *State, payload []byte) Classification {
	// Long header with fixed bit set, QUIC v1 or v2.
	if len(payload) < 1200 || payload[0]&0xC0 != 0xC0 {
		return Unknown
	}
	switch binary.BigEndian.Uint32(payload[1:5]) {
	case 0x00000001, 0x6b3343cf:
		return Classification{App: ProtoQUIC}
	}
	return Unknown
}
