package protocol

import (
	"encoding/binary"
	"fmt"
)

// SF wire format, little-endian:
//
//	offset  size    field
//	0       2       magic 0xD0 0xB0
//	2       2       inner_len (header + payload + crc)
//	4       1       version (0x01)
//	5       1       type
//	6       2       conn
//	8       2       port
//	10      2       paylen
//	12      paylen  payload
//	..      2       crc16-ccitt over bytes 4..12 and payload
const (
	Version  = 0x01
	MaxFrame = 4096

	prefixLen   = 4  // magic + inner_len
	headerLen   = 8  // version..paylen
	crcLen      = 2
	minInnerLen = headerLen + crcLen

	// MaxPayload is the largest payload EncodeFrame accepts; anything
	// bigger would push inner_len past MaxFrame and the decoder would
	// treat the frame as a corrupt candidate.
	MaxPayload = MaxFrame - minInnerLen
)

var magic = []byte{0xD0, 0xB0}

// FrameType identifies the traffic class carried by a frame.
type FrameType byte

const (
	TypeHello FrameType = 0x01
	TypeUDP   FrameType = 0x02
	TypeLog   FrameType = 0x03

	TypeTCPOpen     FrameType = 0x10
	TypeTCPOpenOK   FrameType = 0x11
	TypeTCPOpenFail FrameType = 0x12
	TypeTCPData     FrameType = 0x13
	TypeTCPClose    FrameType = 0x14
)

// String returns the wire name of the frame type.
func (t FrameType) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeUDP:
		return "UDP"
	case TypeLog:
		return "LOG"
	case TypeTCPOpen:
		return "TCP_OPEN"
	case TypeTCPOpenOK:
		return "TCP_OPEN_OK"
	case TypeTCPOpenFail:
		return "TCP_OPEN_FAIL"
	case TypeTCPData:
		return "TCP_DATA"
	case TypeTCPClose:
		return "TCP_CLOSE"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

// IsTCP reports whether the type belongs to the proxied-TCP family.
func (t FrameType) IsTCP() bool {
	return t >= TypeTCPOpen && t <= TypeTCPClose
}

// Frame is one decoded SF frame. Conn and Port identify the sending-side
// connection and the proxied destination port; their exact meaning depends
// on the type and the direction the frame travelled.
type Frame struct {
	Type    FrameType
	Conn    uint16
	Port    uint16
	Payload []byte
}

// crc16CCITT continues a CRC16-CCITT register (poly 0x1021, init 0xFFFF,
// no reflection, no final xor) across data.
func crc16CCITT(data []byte, crc uint16) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// EncodeFrame builds the full wire frame for the given fields. It is the
// exact inverse of Decoder.Pop for any payload up to MaxPayload bytes.
func EncodeFrame(t FrameType, conn, port uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayload)
	}

	innerLen := headerLen + len(payload) + crcLen
	buf := make([]byte, prefixLen+innerLen)

	copy(buf[0:2], magic)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(innerLen))
	buf[4] = Version
	buf[5] = byte(t)
	binary.LittleEndian.PutUint16(buf[6:8], conn)
	binary.LittleEndian.PutUint16(buf[8:10], port)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(payload)))
	copy(buf[12:], payload)

	crc := crc16CCITT(buf[4:12], 0xFFFF)
	crc = crc16CCITT(payload, crc)
	binary.LittleEndian.PutUint16(buf[12+len(payload):], crc)

	return buf, nil
}
