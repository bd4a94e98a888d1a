package frame

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03, 0x04}
	wire := Encode(0x12, body, 7)

	d := NewDecoder(Options{})
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := frames[0]
	if got.Protocol != 0x12 {
		t.Errorf("protocol = 0x%02X, want 0x12", got.Protocol)
	}
	if !bytes.Equal(got.Body, body) {
		t.Errorf("body = %x, want %x", got.Body, body)
	}
	if got.Serial != 7 {
		t.Errorf("serial = %d, want 7", got.Serial)
	}
	if !got.CRCValid {
		t.Errorf("CRCValid = false, want true")
	}
	if got.StopBits != Stop0D0A || !got.StopBitsRecognized {
		t.Errorf("stop bits not recognized: %04X", got.StopBits)
	}
}

func TestFeedSplitAcrossWrites(t *testing.T) {
	wire := Encode(0x01, []byte{0xAA, 0xBB}, 1)

	d := NewDecoder(Options{})
	if frames := d.Feed(wire[:3]); len(frames) != 0 {
		t.Fatalf("partial feed yielded %d frames, want 0", len(frames))
	}
	frames := d.Feed(wire[3:])
	if len(frames) != 1 {
		t.Fatalf("got %d frames after completing the write, want 1", len(frames))
	}
}

func TestFeedSkipsGarbageBeforeHeader(t *testing.T) {
	garbage := []byte{0x00, 0xFF, 0x11, 0x22, 0x33}
	wire := Encode(0x13, []byte{0x01}, 99)

	d := NewDecoder(Options{})
	frames := d.Feed(append(append([]byte{}, garbage...), wire...))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Protocol != 0x13 {
		t.Errorf("protocol = 0x%02X, want 0x13", frames[0].Protocol)
	}
	if d.Skipped() != int64(len(garbage)) {
		t.Errorf("skipped = %d, want %d", d.Skipped(), len(garbage))
	}
}

func TestFeedMultipleFramesInOneWrite(t *testing.T) {
	a := Encode(0x01, []byte{0x01}, 1)
	b := Encode(0x13, []byte{0x02}, 2)

	d := NewDecoder(Options{})
	frames := d.Feed(append(append([]byte{}, a...), b...))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Serial != 1 || frames[1].Serial != 2 {
		t.Errorf("unexpected serials: %d, %d", frames[0].Serial, frames[1].Serial)
	}
}

func TestFeedRejectsOversizeCandidate(t *testing.T) {
	// declared length field claims far more body than MaxFrameLength allows
	oversized := []byte{0x78, 0x78, 0xFF, 0x12}
	oversized = append(oversized, make([]byte, 0xFF)...)
	oversized = append(oversized, 0x00, 0x01, 0xAB, 0xCD, 0x0D, 0x0A)

	d := NewDecoder(Options{MaxFrameLength: 16})
	frames := d.Feed(oversized)
	if len(frames) != 0 {
		t.Fatalf("got %d frames, want 0 (oversize candidate should be skipped)", len(frames))
	}
}

func TestFeedToleratesNonstandardStopBitsByDefault(t *testing.T) {
	wire := Encode(0x01, []byte{0x01}, 1)
	// overwrite the stop bits with a non-canonical-but-accepted pattern
	wire[len(wire)-2] = 0xFF
	wire[len(wire)-1] = 0xFF

	d := NewDecoder(Options{})
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].StopBits != StopFFFF || !frames[0].StopBitsRecognized {
		t.Errorf("expected recognized 0xFFFF stop bits, got %04X recognized=%v",
			frames[0].StopBits, frames[0].StopBitsRecognized)
	}
	if !(Options{}).Accept(frames[0]) {
		t.Errorf("default Options should accept non-canonical but recognized stop bits")
	}
}

func TestStrictStopBitsRejectsUnrecognizedPattern(t *testing.T) {
	wire := Encode(0x01, []byte{0x01}, 1)
	wire[len(wire)-2] = 0x12
	wire[len(wire)-1] = 0x34

	d := NewDecoder(Options{})
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	strict := Options{StrictStopBits: true}
	if strict.Accept(frames[0]) {
		t.Errorf("strict mode should reject unrecognized stop bits")
	}
}

func TestStrictCRCRejectsMismatch(t *testing.T) {
	wire := Encode(0x01, []byte{0x01}, 1)
	wire[len(wire)-3] ^= 0xFF // corrupt one CRC byte

	d := NewDecoder(Options{})
	frames := d.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].CRCValid {
		t.Fatalf("expected CRC mismatch after corruption")
	}
	lenient := Options{}
	if !lenient.Accept(frames[0]) {
		t.Errorf("default Options should accept a CRC mismatch (logged, not rejected)")
	}
	strict := Options{StrictCRC: true}
	if strict.Accept(frames[0]) {
		t.Errorf("strict CRC mode should reject the corrupted frame")
	}
}

func TestExtendedHeaderUsesTwoByteLength(t *testing.T) {
	// Build a 0x7979 frame by hand since Encode only emits 0x7878.
	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}
	contentLen := 1 + len(body) + 2 + 2
	raw := []byte{0x79, 0x79, byte(contentLen >> 8), byte(contentLen)}
	raw = append(raw, 0x94) // protocol
	raw = append(raw, body...)
	raw = appendUint16(raw, 42)
	crc := CRC16(raw[2:])
	raw = appendUint16(raw, crc)
	raw = appendUint16(raw, Stop0D0A)

	d := NewDecoder(Options{})
	frames := d.Feed(raw)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := frames[0]
	if !got.IsExtended() {
		t.Errorf("expected IsExtended() true for 0x7979 header")
	}
	if len(got.Body) != len(body) {
		t.Errorf("body length = %d, want %d", len(got.Body), len(body))
	}
}

func TestFeedWithNoDataReturnsNil(t *testing.T) {
	d := NewDecoder(Options{})
	if frames := d.Feed(nil); len(frames) != 0 {
		t.Fatalf("got %d frames from empty feed, want 0", len(frames))
	}
}
