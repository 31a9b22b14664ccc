//go:build pcap

package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/usbsniff/internal/monitoring"
)

// LiveSource captures UDP payloads from a network interface.
type LiveSource struct {
	Source
	iface  string
	handle *pcap.Handle
	reader *packetReader
}

// OpenLive starts a live capture on iface for UDP traffic to udpPort.
func OpenLive(iface string, udpPort uint16, format Format) (*LiveSource, error) {
	handle, err := pcap.OpenLive(iface, 65535, true, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", iface, err)
	}
	filter := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
	}
	monitoring.Logf("capture: live on %s, BPF filter %s", iface, filter)

	pr := &packetReader{src: &timeoutRetry{handle}, udpPort: udpPort}
	return &LiveSource{Source: NewReaderSource(pr, format), iface: iface, handle: handle, reader: pr}, nil
}

// Stats returns the packet counters.
func (s *LiveSource) Stats() PacketStats { return s.reader.stats() }

// Close stops the capture and logs the packet counters.
func (s *LiveSource) Close() error {
	err := s.Source.Close()
	s.handle.Close()
	logPacketStats(s.iface, s.Stats())
	return err
}

// timeoutRetry hides read timeouts so the reader only sees packets or
// real errors.
type timeoutRetry struct {
	*pcap.Handle
}

func (t *timeoutRetry) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	for {
		data, ci, err := t.Handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		return data, ci, err
	}
}
