// Package dpi classifies the application protocol of a flow from its payload
// and, failing that, from its ports.
package dpi

import (
	"strings"
	"time"

	"Go2NetTop/internal/core/model"
)

// Protocol identifies an application protocol or a well-known service.
type Protocol uint16

const (
	ProtoUnknown Protocol = iota
	ProtoHTTP
	ProtoTLS
	ProtoDNS
	ProtoSSH
	ProtoSMTP
	ProtoFTP
	ProtoPOP3
	ProtoIMAP
	ProtoNTP
	ProtoDHCP
	ProtoQUIC
	ProtoSTUN
	ProtoBitTorrent
	ProtoICMP
	ProtoMDNS
	ProtoNetBIOS
	ProtoSNMP
	ProtoSyslog
	ProtoRDP
	ProtoMySQL
	ProtoPostgreSQL
	ProtoRedis

	// Services recognised from TLS SNI or the HTTP Host header.
	ProtoGoogle
	ProtoYouTube
	ProtoFacebook
	ProtoNetflix
	ProtoAmazon
	ProtoMicrosoft
	ProtoApple
	ProtoCloudflare
	ProtoGitHub
	ProtoWhatsApp
)

var protocolNames = map[Protocol]string{
	ProtoUnknown:    "Unknown",
	ProtoHTTP:       "HTTP",
	ProtoTLS:        "TLS",
	ProtoDNS:        "DNS",
	ProtoSSH:        "SSH",
	ProtoSMTP:       "SMTP",
	ProtoFTP:        "FTP",
	ProtoPOP3:       "POP3",
	ProtoIMAP:       "IMAP",
	ProtoNTP:        "NTP",
	ProtoDHCP:       "DHCP",
	ProtoQUIC:       "QUIC",
	ProtoSTUN:       "STUN",
	ProtoBitTorrent: "BitTorrent",
	ProtoICMP:       "ICMP",
	ProtoMDNS:       "MDNS",
	ProtoNetBIOS:    "NetBIOS",
	ProtoSNMP:       "SNMP",
	ProtoSyslog:     "Syslog",
	ProtoRDP:        "RDP",
	ProtoMySQL:      "MySQL",
	ProtoPostgreSQL: "PostgreSQL",
	ProtoRedis:      "Redis",
	ProtoGoogle:     "Google",
	ProtoYouTube:    "YouTube",
	ProtoFacebook:   "Facebook",
	ProtoNetflix:    "Netflix",
	ProtoAmazon:     "Amazon",
	ProtoMicrosoft:  "Microsoft",
	ProtoApple:      "Apple",
	ProtoCloudflare: "Cloudflare",
	ProtoGitHub:     "GitHub",
	ProtoWhatsApp:   "WhatsApp",
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return protocolNames[ProtoUnknown]
}

// ProtocolByName looks a protocol up by its display name, case-insensitively.
func ProtocolByName(name string) (Protocol, bool) {
	for p, n := range protocolNames {
		if strings.EqualFold(n, name) {
			return p, true
		}
	}
	return ProtoUnknown, false
}

// Classification is the result of inspecting a flow. Master is the carrier
// protocol (e.g. TLS) when App is a service running on top of it.
type Classification struct {
	Master Protocol
	App    Protocol
}

// Unknown is the zero classification.
var Unknown = Classification{}

// IsUnknown reports whether nothing was recognised.
func (c Classification) IsUnknown() bool {
	return c == Unknown
}

// Classifier is the contract the flow engine needs from a DPI engine.
type Classifier interface {
	// Dissect feeds one payload slice of a flow to the classifier.
	Dissect(state *State, payload []byte, ts time.Time, src2dst bool) Classification
	// Guess classifies a flow from its tuple alone.
	Guess(l4 model.L4Proto, saddr uint32, sport uint16, daddr uint32, dport uint16) Classification
	// Name returns the display name of a classification.
	Name(c Classification) string
}
