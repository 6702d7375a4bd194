package protocol

import (
	"bytes"
	"encoding/binary"
)

// Decoder turns a raw serial byte stream into discrete frames. Corruption is
// never surfaced: the decoder resynchronizes by discarding a single byte and
// rescanning, so a valid frame starting one byte after a false magic is still
// recovered. A Decoder is owned by exactly one pump direction and is not safe
// for concurrent use.
type Decoder struct {
	buf      []byte
	maxFrame int
}

func NewDecoder() *Decoder {
	return &Decoder{maxFrame: MaxFrame}
}

// Feed appends stream bytes to the accumulation buffer. When garbage with no
// valid magic pushes the buffer past twice the maximum frame size, the oldest
// bytes are dropped: resynchronizing on recent data beats preserving stale
// unparsable bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	if len(d.buf) > 2*d.maxFrame {
		d.buf = append(d.buf[:0], d.buf[len(d.buf)-d.maxFrame:]...)
	}
}

// Buffered returns the number of bytes not yet resolved into a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Pop attempts to decode the next frame from the buffered stream. It returns
// the frame together with the exact wire bytes it decoded from, so callers
// can forward byte-for-byte without re-encoding. ok is false when more input
// is needed; there is no error case.
func (d *Decoder) Pop() (fr Frame, raw []byte, ok bool) {
	for {
		if len(d.buf) < prefixLen {
			return Frame{}, nil, false
		}

		// Resync on magic.
		mi := bytes.Index(d.buf, magic)
		if mi == -1 {
			d.buf = d.buf[:0]
			return Frame{}, nil, false
		}
		if mi > 0 {
			d.buf = d.buf[mi:]
			if len(d.buf) < prefixLen {
				return Frame{}, nil, false
			}
		}

		innerLen := int(binary.LittleEndian.Uint16(d.buf[2:4]))
		if innerLen < minInnerLen || innerLen > d.maxFrame {
			// False-positive magic. Drop one byte only: a real frame may
			// start inside the discarded candidate.
			d.buf = d.buf[1:]
			continue
		}

		total := prefixLen + innerLen
		if len(d.buf) < total {
			return Frame{}, nil, false
		}

		cand := d.buf[:total]
		ver := cand[4]
		paylen := int(binary.LittleEndian.Uint16(cand[10:12]))
		if ver != Version || headerLen+paylen+crcLen != innerLen {
			d.buf = d.buf[1:]
			continue
		}

		wantCRC := binary.LittleEndian.Uint16(cand[12+paylen:])
		crc := crc16CCITT(cand[4:12], 0xFFFF)
		crc = crc16CCITT(cand[12:12+paylen], crc)
		if crc != wantCRC {
			d.buf = d.buf[1:]
			continue
		}

		// Copy out before consuming so the returned bytes never alias the
		// accumulation buffer.
		raw = make([]byte, total)
		copy(raw, cand)
		d.buf = d.buf[total:]

		return Frame{
			Type:    FrameType(raw[5]),
			Conn:    binary.LittleEndian.Uint16(raw[6:8]),
			Port:    binary.LittleEndian.Uint16(raw[8:10]),
			Payload: raw[12 : 12+paylen],
		}, raw, true
	}
}
