// Package mjpeg streams JPEG frames over RTP per RFC 2435.
package mjpeg

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	rtpVersion     = 2
	rtpHeaderSize  = 12
	jpegHeaderSize = 8

	// PayloadTypeJPEG is the static RTP payload type for JPEG video.
	PayloadTypeJPEG = 26
	// ClockRate is the RTP clock for video payloads, in Hz.
	ClockRate = 90000
	// DefaultMTU bounds packet size when the config leaves it unset.
	DefaultMTU = 1400
)

// Packetizer fragments JPEG frames into RTP packets. Sequence numbers and
// statistics are updated atomically so stats can be read while frames flow.
type Packetizer struct {
	ssrc       uint32
	maxPayload int

	seq uint32

	packetsSent uint64
	bytesSent   uint64
	framesSent  uint64
}

// NewPacketizer creates a packetizer for the given SSRC, sizing fragments so
// that header plus payload fits in mtu bytes.
func NewPacketizer(ssrc uint32, mtu int) *Packetizer {
	if mtu <= rtpHeaderSize+jpegHeaderSize {
		mtu = DefaultMTU
	}
	return &Packetizer{
		ssrc:       ssrc,
		maxPayload: mtu - rtpHeaderSize - jpegHeaderSize,
	}
}

// Packetize splits one JPEG frame into RTP packets. All packets of a frame
// share the timestamp; the last carries the RTP marker bit.
func (p *Packetizer) Packetize(jpegData []byte, width, height int, timestamp uint32) ([][]byte, error) {
	if len(jpegData) < 2 || jpegData[0] != 0xFF || jpegData[1] != 0xD8 {
		return nil, fmt.Errorf("not a JPEG frame, missing SOI marker")
	}

	n := (len(jpegData) + p.maxPayload - 1) / p.maxPayload
	packets := make([][]byte, 0, n)
	seq := atomic.LoadUint32(&p.seq)

	for offset := 0; offset < len(jpegData); offset += p.maxPayload {
		end := offset + p.maxPayload
		if end > len(jpegData) {
			end = len(jpegData)
		}
		last := end == len(jpegData)

		pkt := make([]byte, rtpHeaderSize+jpegHeaderSize+end-offset)
		p.writeHeader(pkt, uint16(seq), timestamp, uint32(offset), width, height, last)
		copy(pkt[rtpHeaderSize+jpegHeaderSize:], jpegData[offset:end])
		packets = append(packets, pkt)

		seq = (seq + 1) & 0xFFFF
	}

	atomic.StoreUint32(&p.seq, seq)
	atomic.AddUint64(&p.packetsSent, uint64(len(packets)))
	atomic.AddUint64(&p.bytesSent, uint64(len(jpegData)))
	atomic.AddUint64(&p.framesSent, 1)
	return packets, nil
}

// writeHeader lays down the RTP fixed header (RFC 3550 5.1) followed by the
// JPEG payload header (RFC 2435 3.1).
func (p *Packetizer) writeHeader(pkt []byte, seq uint16, timestamp, fragOffset uint32, width, height int, marker bool) {
	pkt[0] = rtpVersion << 6
	pkt[1] = PayloadTypeJPEG
	if marker {
		pkt[1] |= 0x80
	}
	binary.BigEndian.PutUint16(pkt[2:4], seq)
	binary.BigEndian.PutUint32(pkt[4:8], timestamp)
	binary.BigEndian.PutUint32(pkt[8:12], p.ssrc)

	// Type-specific 0, then 24-bit fragment offset.
	pkt[12] = 0
	pkt[13] = byte(fragOffset >> 16)
	pkt[14] = byte(fragOffset >> 8)
	pkt[15] = byte(fragOffset)
	// Baseline JPEG, Q=128 means tables travel in-band.
	pkt[16] = 0
	pkt[17] = 128
	pkt[18] = byte(width / 8)
	pkt[19] = byte(height / 8)
}

// Sequence returns the sequence number the next packet will carry.
func (p *Packetizer) Sequence() uint16 {
	return uint16(atomic.LoadUint32(&p.seq))
}

// Stats is a snapshot of packetizer counters.
type Stats struct {
	PacketsSent uint64
	BytesSent   uint64
	FramesSent  uint64
}

// Stats returns the current counters.
func (p *Packetizer) Stats() Stats {
	return Stats{
		PacketsSent: atomic.LoadUint64(&p.packetsSent),
		BytesSent:   atomic.LoadUint64(&p.bytesSent),
		FramesSent:  atomic.LoadUint64(&p.framesSent),
	}
}

// TimestampFor converts a capture time to RTP clock units relative to epoch,
// so RTP timing follows the camera clock instead of the send time.
func TimestampFor(captured, epoch time.Time) uint32 {
	if captured.Before(epoch) {
		return 0
	}
	return uint32(captured.Sub(epoch).Seconds() * ClockRate)
}
