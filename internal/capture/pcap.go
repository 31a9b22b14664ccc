package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/usbsniff/internal/monitoring"
)

// packetSource is satisfied by pcapgo readers and live pcap handles.
type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// PacketStats counts what a packet reader has seen.
type PacketStats struct {
	Packets uint64
	Skipped uint64
	Bytes   uint64
}

// packetReader presents the UDP payloads of a packet stream as one byte
// stream. The counters may be read while a Read is in progress.
type packetReader struct {
	src     packetSource
	udpPort uint16
	pending []byte

	packets atomic.Uint64
	skipped atomic.Uint64
	bytes   atomic.Uint64
}

func (r *packetReader) stats() PacketStats {
	return PacketStats{
		Packets: r.packets.Load(),
		Skipped: r.skipped.Load(),
		Bytes:   r.bytes.Load(),
	}
}

func logPacketStats(name string, st PacketStats) {
	monitoring.Logf("capture: %s closed: packets=%d skipped=%d bytes=%d", name, st.Packets, st.Skipped, st.Bytes)
}

func (r *packetReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		data, _, err := r.src.ReadPacketData()
		if err != nil {
			return 0, err
		}
		r.packets.Add(1)
		payload, ok := udpPayload(data, r.src.LinkType(), r.udpPort)
		if !ok {
			r.skipped.Add(1)
			continue
		}
		r.pending = payload
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	r.bytes.Add(uint64(n))
	return n, nil
}

func udpPayload(data []byte, link layers.LinkType, port uint16) ([]byte, bool) {
	pkt := gopacket.NewPacket(data, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok || len(udp.Payload) == 0 {
		return nil, false
	}
	if port != 0 && uint16(udp.DstPort) != port {
		return nil, false
	}
	return udp.Payload, true
}

// PCAPSource reads capture bytes from the UDP payloads of a pcap or pcapng
// file.
type PCAPSource struct {
	Source
	reader *packetReader
	file   *os.File
}

// Stats returns the packet counters.
func (s *PCAPSource) Stats() PacketStats {
	return s.reader.stats()
}

// Close closes the file and logs the packet counters.
func (s *PCAPSource) Close() error {
	err := s.Source.Close()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	logPacketStats(s.file.Name(), s.Stats())
	return err
}

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// OpenPCAP opens a capture file. Only UDP packets to udpPort are used; zero
// accepts any port.
func OpenPCAP(path string, udpPort uint16, format Format) (*PCAPSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read PCAP magic %s: %w", path, err)
	}
	var src packetSource
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parse PCAP header %s: %w", path, err)
	}
	monitoring.Logf("capture: reading %s (link %s, udp port %d)", path, src.LinkType(), udpPort)

	pr := &packetReader{src: src, udpPort: udpPort}
	return &PCAPSource{
		Source: NewReaderSource(io.Reader(pr), format),
		reader: pr,
		file:   f,
	}, nil
}

// WritePCAP writes each payload as one Ethernet/IPv4/UDP packet to
// udpPort. It produces files OpenPCAP reads back.
func WritePCAP(w io.Writer, udpPort uint16, payloads [][]byte) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return err
	}
	for i, payload := range payloads {
		eth := &layers.Ethernet{
			SrcMAC:       []byte{0x02, 0, 0, 0, 0, 1},
			DstMAC:       []byte{0x02, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    []byte{192, 168, 1, 50},
			DstIP:    []byte{192, 168, 1, 100},
		}
		udp := &layers.UDP{SrcPort: layers.UDPPort(udpPort), DstPort: layers.UDPPort(udpPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			return fmt.Errorf("serialize packet %d: %w", i, err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)}
		if err := pw.WritePacket(ci, data); err != nil {
			return err
		}
	}
	return nil
}
