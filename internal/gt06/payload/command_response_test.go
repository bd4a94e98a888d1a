package payload

import "testing"

func TestDecodeCommandResponse(t *testing.T) {
	body := []byte{0x00, 0x2A, 'O', 'K'}
	resp, err := DecodeCommandResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Serial != 42 {
		t.Errorf("serial = %d, want 42", resp.Serial)
	}
	if string(resp.Raw) != "OK" {
		t.Errorf("raw = %q, want %q", resp.Raw, "OK")
	}
}

func TestDecodeCommandResponseTooShort(t *testing.T) {
	if _, err := DecodeCommandResponse([]byte{0x01}); err == nil {
		t.Fatal("expected error for short body")
	}
}
