// Package frame implements the GT06 wire framing: turning a duplex byte
// stream into validated frames and back.
package frame

import "fmt"

// Header values. 0x7979 signals the extended (2-byte) length encoding.
const (
	Header78 uint16 = 0x7878
	Header79 uint16 = 0x7979
)

// Stop-bit patterns real devices are known to emit. 0x0D0A is the
// documented pattern; the rest are tolerated under the default (lenient)
// policy and rejected only when StrictStopBits is set.
const (
	Stop0D0A uint16 = 0x0D0A
	Stop0A0D uint16 = 0x0A0D
	Stop0000 uint16 = 0x0000
	StopFFFF uint16 = 0xFFFF
)

// MinFrameLength is the number of buffered bytes the decoder needs
// before it examines a candidate frame at all.
const MinFrameLength = 5

// MaxFrameLength is the hard cap on a frame's total wire size (§6.4,
// overridable via Options.MaxFrameLength).
const MaxFrameLength = 1024

// Frame is an immutable decoded GT06 message (spec §3).
type Frame struct {
	StartBits uint16
	Length    int
	Protocol  byte
	Body      []byte
	Serial    uint16
	CRC       uint16
	StopBits  uint16

	// CRCValid reports whether the frame's declared CRC matched the
	// CRC computed over length..serial. Mismatches are logged by the
	// caller but never reject the frame unless strict_crc is set.
	CRCValid bool

	// StopBitsRecognized reports whether StopBits was one of the
	// accepted patterns. A frame with unrecognized stop bits is still
	// returned unless strict_stop_bits is set.
	StopBitsRecognized bool
}

// IsExtended reports whether the frame used the 0x7979 header (2-byte
// length field).
func (f *Frame) IsExtended() bool {
	return f.StartBits == Header79
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{start=0x%04X proto=0x%02X serial=%d len=%d body=%dB crc_ok=%v}",
		f.StartBits, f.Protocol, f.Serial, f.Length, len(f.Body), f.CRCValid)
}

func isValidStopBits(v uint16) bool {
	switch v {
	case Stop0D0A, Stop0A0D, Stop0000, StopFFFF:
		return true
	default:
		return false
	}
}

func lengthFieldWidth(header uint16) int {
	if header == Header79 {
		return 2
	}
	return 1
}
