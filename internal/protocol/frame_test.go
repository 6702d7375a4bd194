package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestCRC16CCITTKnownVector(t *testing.T) {
	// Standard CRC16-CCITT-FALSE check value.
	got := crc16CCITT([]byte("123456789"), 0xFFFF)
	if got != 0x29B1 {
		t.Fatalf("crc16CCITT(123456789) = 0x%04X, want 0x29B1", got)
	}
}

func TestCRC16CCITTRunningRegister(t *testing.T) {
	// One register continued across two parts must equal a single pass.
	data := []byte("123456789")
	crc := crc16CCITT(data[:4], 0xFFFF)
	crc = crc16CCITT(data[4:], crc)
	if crc != 0x29B1 {
		t.Fatalf("split crc = 0x%04X, want 0x29B1", crc)
	}
}

func TestEncodeFrameLayout(t *testing.T) {
	raw, err := EncodeFrame(TypeUDP, 5010, 40000, []byte{0x01, 0x02})
	if err != nil {
		t.Fatal(err)
	}

	if len(raw) != prefixLen+headerLen+2+crcLen {
		t.Fatalf("frame length = %d, want %d", len(raw), prefixLen+headerLen+2+crcLen)
	}
	if raw[0] != 0xD0 || raw[1] != 0xB0 {
		t.Fatalf("magic = % x", raw[:2])
	}
	if got := binary.LittleEndian.Uint16(raw[2:4]); got != headerLen+2+crcLen {
		t.Fatalf("inner_len = %d, want %d", got, headerLen+2+crcLen)
	}
	if raw[4] != Version {
		t.Fatalf("version = %d", raw[4])
	}
	if FrameType(raw[5]) != TypeUDP {
		t.Fatalf("type = 0x%02x", raw[5])
	}
	if got := binary.LittleEndian.Uint16(raw[6:8]); got != 5010 {
		t.Fatalf("conn = %d", got)
	}
	if got := binary.LittleEndian.Uint16(raw[8:10]); got != 40000 {
		t.Fatalf("port = %d", got)
	}
	if got := binary.LittleEndian.Uint16(raw[10:12]); got != 2 {
		t.Fatalf("paylen = %d", got)
	}
	if !bytes.Equal(raw[12:14], []byte{0x01, 0x02}) {
		t.Fatalf("payload = % x", raw[12:14])
	}
}

func TestEncodeFramePayloadTooLarge(t *testing.T) {
	if _, err := EncodeFrame(TypeUDP, 1, 2, make([]byte, MaxPayload+1)); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestEncodeFrameNilPayload(t *testing.T) {
	raw, err := EncodeFrame(TypeTCPClose, 7, 8060, nil)
	if err != nil {
		t.Fatal(err)
	}
	dec := NewDecoder()
	dec.Feed(raw)
	fr, _, ok := dec.Pop()
	if !ok {
		t.Fatal("no frame decoded")
	}
	if fr.Type != TypeTCPClose || fr.Conn != 7 || fr.Port != 8060 || len(fr.Payload) != 0 {
		t.Fatalf("roundtrip: got %+v", fr)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		typ     FrameType
		conn    uint16
		port    uint16
		payload []byte
	}{
		{"udp small", TypeUDP, 5010, 40000, []byte{0x01, 0x02}},
		{"hello", TypeHello, 0, 0, []byte("AP")},
		{"log text", TypeLog, 0, 0, []byte("wifi: connected")},
		{"tcp open empty", TypeTCPOpen, 3, 7060, nil},
		{"tcp data binary", TypeTCPData, 1, 9060, []byte{0x00, 0xFF, 0xD0, 0xB0, 0x7F}},
		{"max payload", TypeUDP, 65535, 65535, bytes.Repeat([]byte{0xAB}, MaxPayload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeFrame(tt.typ, tt.conn, tt.port, tt.payload)
			if err != nil {
				t.Fatal(err)
			}
			dec := NewDecoder()
			dec.Feed(raw)
			fr, gotRaw, ok := dec.Pop()
			if !ok {
				t.Fatal("no frame decoded")
			}
			if fr.Type != tt.typ || fr.Conn != tt.conn || fr.Port != tt.port {
				t.Fatalf("header mismatch: got %+v", fr)
			}
			if !bytes.Equal(fr.Payload, tt.payload) {
				t.Fatalf("payload mismatch: got % x", fr.Payload)
			}
			if !bytes.Equal(gotRaw, raw) {
				t.Fatal("raw bytes differ from encoded input")
			}
			if dec.Buffered() != 0 {
				t.Fatalf("decoder kept %d bytes after full frame", dec.Buffered())
			}
		})
	}
}

func TestFrameTypeString(t *testing.T) {
	tests := []struct {
		typ  FrameType
		want string
	}{
		{TypeHello, "HELLO"},
		{TypeUDP, "UDP"},
		{TypeLog, "LOG"},
		{TypeTCPOpen, "TCP_OPEN"},
		{TypeTCPOpenOK, "TCP_OPEN_OK"},
		{TypeTCPOpenFail, "TCP_OPEN_FAIL"},
		{TypeTCPData, "TCP_DATA"},
		{TypeTCPClose, "TCP_CLOSE"},
		{FrameType(0x7E), "0x7e"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("FrameType(0x%02x).String() = %q, want %q", byte(tt.typ), got, tt.want)
		}
	}
}
