package capture

import (
	"fmt"

	"github.com/google/gopacket/pcap"
)

// LiveSource is a PacketSource backed by a live network interface via
// libpcap. It is the operator-facing counterpart to SliceSource/PcapReader;
// none of its behavior is exercised by tests since it requires a real NIC
// and elevated capture privileges.
type LiveSource struct {
	handle *pcap.Handle
}

// OpenLiveSource opens iface in promiscuous mode with the given BPF
// filter (empty filter captures everything).
func OpenLiveSource(iface, filter string, snaplen int32) (*LiveSource, error) {
	handle, err := pcap.OpenLive(iface, snaplen, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("capture: opening interface %s: %w", iface, err)
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("capture: invalid filter %q: %w", filter, err)
		}
	}
	return &LiveSource{handle: handle}, nil
}

// Run blocks reading frames off the interface until Break or ReadPacketData
// returns a terminal error.
func (s *LiveSource) Run(handler PacketHandler) error {
	for {
		data, ci, err := s.handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		if err != nil {
			return fmt.Errorf("capture: reading from interface: %w", err)
		}
		handler(ci.Timestamp, data)
	}
}

// Break closes the underlying handle, which unblocks ReadPacketData with
// an error that Run treats as terminal.
func (s *LiveSource) Break() {
	s.handle.Close()
}

func (s *LiveSource) Close() error {
	s.handle.Close()
	return nil
}

// ListInterfaces returns the names of capture-capable interfaces, for the
// operator-facing --list flag.
func ListInterfaces() ([]string, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("capture: listing interfaces: %w", err)
	}
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}
