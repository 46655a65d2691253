package remote

import (
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// videoClockRate is the RTP clock of H264 video.
const videoClockRate = 90000

// accessUnit is one complete Annex-B encoded picture.
type accessUnit struct {
	data        []byte
	timestampUs uint64
}

// depacketizer reassembles H264 access units from RTP packets. An access
// unit ends at the packet carrying the marker bit.
type depacketizer struct {
	h264    codecs.H264Packet
	buf     []byte
	ts      uint32
	started bool
}

// push adds a packet and returns a complete access unit when one ends.
// Packets of a new timestamp discard an unterminated unit.
func (d *depacketizer) push(pkt *rtp.Packet) (accessUnit, bool, error) {
	if d.started && pkt.Timestamp != d.ts {
		d.buf = d.buf[:0]
	}
	d.ts = pkt.Timestamp
	d.started = true

	nal, err := d.h264.Unmarshal(pkt.Payload)
	if err != nil {
		d.buf = d.buf[:0]
		return accessUnit{}, false, err
	}
	d.buf = append(d.buf, nal...)

	if !pkt.Marker || len(d.buf) == 0 {
		return accessUnit{}, false, nil
	}
	au := accessUnit{
		data:        append([]byte(nil), d.buf...),
		timestampUs: rtpToMicros(pkt.Timestamp),
	}
	d.buf = d.buf[:0]
	return au, true, nil
}

// rtpToMicros converts a 90 kHz RTP timestamp to microseconds.
func rtpToMicros(ts uint32) uint64 {
	return uint64(ts) * 1_000_000 / videoClockRate
}
