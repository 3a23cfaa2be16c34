package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// Classic libpcap format constants (microsecond resolution, no nanosecond
// variant, no pcapng). See spec §6: "a standard libpcap-format file, one
// packet per received frame, flushed after each write."
const (
	pcapMagicMicroseconds = 0xa1b2c3d4
	pcapVersionMajor      = 2
	pcapVersionMinor      = 4
	linkTypeEthernet      = 1
	pcapGlobalHeaderLen   = 24
	pcapRecordHeaderLen   = 16
)

// PcapWriter writes a standard libpcap file, flushing after every
// record so the file is valid if the process is interrupted mid-capture.
type PcapWriter struct {
	f   *os.File
	buf *bufio.Writer
}

// NewPcapWriter creates (or truncates) path and writes the global
// header.
func NewPcapWriter(path string, snaplen uint32) (*PcapWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: opening pcap output: %w", err)
	}
	w := &PcapWriter{f: f, buf: bufio.NewWriter(f)}

	hdr := make([]byte, pcapGlobalHeaderLen)
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagicMicroseconds)
	binary.LittleEndian.PutUint16(hdr[4:6], pcapVersionMajor)
	binary.LittleEndian.PutUint16(hdr[6:8], pcapVersionMinor)
	// bytes 8:12 thiszone, 12:16 sigfigs — both conventionally zero.
	binary.LittleEndian.PutUint32(hdr[16:20], snaplen)
	binary.LittleEndian.PutUint32(hdr[20:24], linkTypeEthernet)

	if _, err := w.buf.Write(hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: writing pcap global header: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: flushing pcap global header: %w", err)
	}
	return w, nil
}

// WritePacket appends one record, flushing immediately per spec §6.
func (w *PcapWriter) WritePacket(arrival time.Time, frame []byte) error {
	rec := make([]byte, pcapRecordHeaderLen)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(arrival.Unix()))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(arrival.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(frame)))
	binary.LittleEndian.PutUint32(rec[12:16], uint32(len(frame)))

	if _, err := w.buf.Write(rec); err != nil {
		return fmt.Errorf("capture: writing pcap record header: %w", err)
	}
	if _, err := w.buf.Write(frame); err != nil {
		return fmt.Errorf("capture: writing pcap record: %w", err)
	}
	return w.buf.Flush()
}

// Close flushes and closes the underlying file.
func (w *PcapWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// PcapReader reads a classic microsecond-resolution libpcap file one
// frame at a time.
type PcapReader struct {
	f    *os.File
	r    *bufio.Reader
	swap bool // true if the file's byte order is the opposite of ours
}

// OpenPcapReader opens path and validates the global header.
func OpenPcapReader(path string) (*PcapReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: opening pcap input: %w", err)
	}
	r := bufio.NewReader(f)

	hdr := make([]byte, pcapGlobalHeaderLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: reading pcap global header: %w", err)
	}

	var swap bool
	switch binary.LittleEndian.Uint32(hdr[0:4]) {
	case pcapMagicMicroseconds:
		swap = false
	case 0xd4c3b2a1: // byte-swapped magic
		swap = true
	default:
		f.Close()
		return nil, fmt.Errorf("capture: not a libpcap file")
	}

	return &PcapReader{f: f, r: r, swap: swap}, nil
}

// Next returns the next frame, or io.EOF when the file is exhausted.
func (r *PcapReader) Next() (Frame, error) {
	rec := make([]byte, pcapRecordHeaderLen)
	if _, err := io.ReadFull(r.r, rec); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Frame{}, err
	}

	order := binary.ByteOrder(binary.LittleEndian)
	if r.swap {
		order = binary.BigEndian
	}
	sec := order.Uint32(rec[0:4])
	usec := order.Uint32(rec[4:8])
	capLen := order.Uint32(rec[8:12])

	data := make([]byte, capLen)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return Frame{}, fmt.Errorf("capture: reading pcap record body: %w", err)
	}

	return Frame{
		Arrival: time.Unix(int64(sec), int64(usec)*1000),
		Bytes:   data,
	}, nil
}

// Close closes the underlying file.
func (r *PcapReader) Close() error { return r.f.Close() }
