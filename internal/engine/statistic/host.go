package statistic

import (
	"fmt"
	"net"
	"time"

	"Go2NetTop/internal/core/model"
	"Go2NetTop/internal/engine/lifetime"
)

// Host is one IPv4 endpoint seen on the wire.
type Host struct {
	IP   net.IP
	Addr uint32
	// MAC is the address latched by the most recently created flow.
	MAC   net.HardwareAddr
	Stats TrafficStats

	lifetime.RefCount
}

// NewHost creates a host with zeroed counters.
func NewHost(addr uint32, mac net.HardwareAddr) *Host {
	return &Host{
		IP:   model.Uint32ToIP(addr),
		Addr: addr,
		MAC:  cloneMAC(mac),
	}
}

// LastSeen implements lifetime.Item.
func (h *Host) LastSeen() time.Time {
	return h.Stats.LastSeen
}

// SetMAC overwrites the latched MAC address.
func (h *Host) SetMAC(mac net.HardwareAddr) {
	h.MAC = cloneMAC(mac)
}

func (h *Host) String() string {
	return fmt.Sprintf("host %s (%s)", h.IP, h.MAC)
}

// cloneMAC copies mac out of a capture buffer that may be reused.
func cloneMAC(mac net.HardwareAddr) net.HardwareAddr {
	if mac == nil {
		return nil
	}
	return append(net.HardwareAddr(nil), mac...)
}
