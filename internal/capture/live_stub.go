//go:build !pcap

package capture

import "errors"

// LiveSource is unavailable without the pcap build tag.
type LiveSource struct {
	Source
}

// Stats returns zero counters.
func (s *LiveSource) Stats() PacketStats { return PacketStats{} }

// OpenLive reports that live capture was not compiled in.
func OpenLive(iface string, udpPort uint16, format Format) (*LiveSource, error) {
	return nil, errors.New("live capture requires building with the 'pcap' tag")
}
