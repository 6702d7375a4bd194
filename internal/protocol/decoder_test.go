package protocol

import (
	"bytes"
	"testing"
)

func mustEncode(t *testing.T, typ FrameType, conn, port uint16, payload []byte) []byte {
	t.Helper()
	raw, err := EncodeFrame(typ, conn, port, payload)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestPopNeedsMoreData(t *testing.T) {
	dec := NewDecoder()
	if _, _, ok := dec.Pop(); ok {
		t.Fatal("empty decoder popped a frame")
	}
	dec.Feed([]byte{0xD0, 0xB0, 0x0C})
	if _, _, ok := dec.Pop(); ok {
		t.Fatal("three buffered bytes popped a frame")
	}
}

func TestTruncatedFrame(t *testing.T) {
	raw := mustEncode(t, TypeUDP, 5010, 40000, []byte{0x01, 0x02})

	dec := NewDecoder()
	dec.Feed(raw[:6])
	if _, _, ok := dec.Pop(); ok {
		t.Fatal("truncated frame popped")
	}
	dec.Feed(raw[6:])
	fr, _, ok := dec.Pop()
	if !ok {
		t.Fatal("completed frame not popped")
	}
	if fr.Type != TypeUDP || fr.Conn != 5010 || fr.Port != 40000 {
		t.Fatalf("got %+v", fr)
	}
}

func TestResyncAfterGarbage(t *testing.T) {
	raw := mustEncode(t, TypeTCPData, 9, 7060, []byte("payload"))

	// Garbage with no accidental magic on either side of the frame.
	junkBefore := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 40)
	junkAfter := bytes.Repeat([]byte{0x44}, 64)

	dec := NewDecoder()
	dec.Feed(junkBefore)
	dec.Feed(raw)
	dec.Feed(junkAfter)

	fr, gotRaw, ok := dec.Pop()
	if !ok {
		t.Fatal("frame not recovered from garbage")
	}
	if !bytes.Equal(gotRaw, raw) {
		t.Fatal("recovered raw bytes differ")
	}
	if !bytes.Equal(fr.Payload, []byte("payload")) {
		t.Fatalf("payload = % x", fr.Payload)
	}
	if _, _, ok := dec.Pop(); ok {
		t.Fatal("trailing garbage produced a frame")
	}
}

func TestFalseMagicThenRealFrame(t *testing.T) {
	raw := mustEncode(t, TypeUDP, 1, 50000, []byte{0xAA})

	// A bare magic with an implausible length, immediately followed by a real
	// frame. Single-byte resync must still find the real frame.
	dec := NewDecoder()
	dec.Feed([]byte{0xD0, 0xB0, 0xFF, 0xFF})
	dec.Feed(raw)

	fr, _, ok := dec.Pop()
	if !ok {
		t.Fatal("frame after false magic not recovered")
	}
	if fr.Port != 50000 {
		t.Fatalf("got %+v", fr)
	}
}

func TestCorruptionRejectedEverywhere(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30, 0x40}
	raw := mustEncode(t, TypeUDP, 42, 40000, payload)
	follow := mustEncode(t, TypeUDP, 43, 40000, []byte{0x99})

	// Flip one bit at every CRC-covered offset (version through payload); the
	// corrupted frame must never be emitted and the following valid frame
	// must still be recovered.
	for off := 4; off < 12+len(payload); off++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := make([]byte, len(raw))
			copy(corrupted, raw)
			corrupted[off] ^= 1 << bit

			dec := NewDecoder()
			dec.Feed(corrupted)
			dec.Feed(follow)

			fr, _, ok := dec.Pop()
			if !ok {
				t.Fatalf("offset %d bit %d: valid follow-up frame lost", off, bit)
			}
			if fr.Conn != 43 || !bytes.Equal(fr.Payload, []byte{0x99}) {
				t.Fatalf("offset %d bit %d: unexpected frame emitted: %+v", off, bit, fr)
			}
			if _, _, ok := dec.Pop(); ok {
				t.Fatalf("offset %d bit %d: extra frame emitted", off, bit)
			}
		}
	}
}

func TestBoundedBuffer(t *testing.T) {
	dec := NewDecoder()
	chunk := bytes.Repeat([]byte{0x55}, 1500)
	for i := 0; i < 100; i++ {
		dec.Feed(chunk)
		if dec.Buffered() > 2*MaxFrame {
			t.Fatalf("buffer grew to %d after feed (limit %d)", dec.Buffered(), 2*MaxFrame)
		}
		// Pop drains buffered garbage that contains no magic at all.
		dec.Pop()
	}
}

func TestBoundedBufferNoPop(t *testing.T) {
	dec := NewDecoder()
	chunk := bytes.Repeat([]byte{0xD0}, 4096) // magic first byte only, never completes
	for i := 0; i < 50; i++ {
		dec.Feed(chunk)
		if dec.Buffered() > 2*MaxFrame {
			t.Fatalf("buffer grew to %d after feed", dec.Buffered())
		}
	}
}

func TestBackToBackFrames(t *testing.T) {
	var stream []byte
	want := []uint16{1, 2, 3, 4, 5}
	for _, c := range want {
		stream = append(stream, mustEncode(t, TypeUDP, c, 7070, []byte{byte(c)})...)
	}

	dec := NewDecoder()
	dec.Feed(stream)

	for _, c := range want {
		fr, _, ok := dec.Pop()
		if !ok {
			t.Fatalf("frame conn=%d not popped", c)
		}
		if fr.Conn != c {
			t.Fatalf("out of order: got conn=%d want %d", fr.Conn, c)
		}
	}
	if _, _, ok := dec.Pop(); ok {
		t.Fatal("extra frame popped")
	}
}

func TestPayloadContainingMagic(t *testing.T) {
	// Magic bytes inside a payload must not derail the framing.
	payload := append([]byte{0xD0, 0xB0, 0x0A, 0x00}, bytes.Repeat([]byte{0xD0, 0xB0}, 8)...)
	raw := mustEncode(t, TypeTCPData, 5, 8060, payload)

	dec := NewDecoder()
	dec.Feed(raw)
	fr, _, ok := dec.Pop()
	if !ok {
		t.Fatal("frame with embedded magic not decoded")
	}
	if !bytes.Equal(fr.Payload, payload) {
		t.Fatalf("payload mismatch: got % x", fr.Payload)
	}
}

func TestRawDoesNotAliasBuffer(t *testing.T) {
	first := mustEncode(t, TypeUDP, 1, 40000, []byte{0x01})
	second := mustEncode(t, TypeUDP, 2, 40000, []byte{0x02})

	dec := NewDecoder()
	dec.Feed(first)
	fr, raw, ok := dec.Pop()
	if !ok {
		t.Fatal("first frame not popped")
	}
	keep := append([]byte(nil), raw...)
	keepPayload := append([]byte(nil), fr.Payload...)

	// Further feeds must not overwrite previously returned frames.
	dec.Feed(second)
	dec.Pop()

	if !bytes.Equal(raw, keep) || !bytes.Equal(fr.Payload, keepPayload) {
		t.Fatal("returned frame mutated by later Feed/Pop")
	}
}
