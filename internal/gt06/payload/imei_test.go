package payload

import "testing"

func TestDecodeIMEIValid(t *testing.T) {
	// 0123456789012345 BCD-packed → leading zero stripped → 15 digits
	body := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45}
	got, err := DecodeIMEI(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "123456789012345" {
		t.Errorf("got %q, want %q", got, "123456789012345")
	}
}

func TestDecodeIMEIInvalidNibble(t *testing.T) {
	body := []byte{0xFA, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45}
	if _, err := DecodeIMEI(body); err == nil {
		t.Fatal("expected error for invalid BCD nibble")
	}
}

func TestDecodeIMEITooShort(t *testing.T) {
	if _, err := DecodeIMEI([]byte{0x01, 0x23}); err == nil {
		t.Fatal("expected error for short body")
	}
}

func TestDecodeIMEIWrongLengthAfterStrip(t *testing.T) {
	// no leading zero, 16 digits remain — fails the 15-digit check
	body := []byte{0x12, 0x34, 0x56, 0x78, 0x90, 0x12, 0x34, 0x56}
	if _, err := DecodeIMEI(body); err == nil {
		t.Fatal("expected error for 16-digit non-zero-leading decode")
	}
}
