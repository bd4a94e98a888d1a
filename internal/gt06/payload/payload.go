// Package payload decodes GT06 frame bodies into typed records, keyed by
// the frame's protocol opcode. Every decoder returns either a typed
// success or an explicit "unparsable" failure; neither case is fatal to
// the owning connection (spec §4.2 "Failure semantics").
package payload

import "fmt"

// Opcode is the GT06 protocol byte identifying a frame's payload shape.
type Opcode byte

const (
	OpLogin           Opcode = 0x01
	OpGPSLBS          Opcode = 0x12
	OpGPSLBSStatus    Opcode = 0x22
	OpGPSStatus       Opcode = 0x16
	OpGPSStatusAlt    Opcode = 0x26
	OpGPSOffline      Opcode = 0x15
	OpGPSDog          Opcode = 0x32
	OpStatus          Opcode = 0x13
	OpLBSPhone        Opcode = 0x17
	OpLBSExtend       Opcode = 0x18
	OpGPSPhone        Opcode = 0x1A
	OpHeartbeat       Opcode = 0x23
	OpLBSMultiple     Opcode = 0x24
	OpCommandResponse Opcode = 0x8A
	OpExtendedGPS     Opcode = 0x94
)

// IsLocation reports whether op carries a decodable location fix,
// including the extended/LBS variants dispatched through this package.
func IsLocation(op Opcode) bool {
	switch op {
	case OpGPSLBS, OpGPSLBSStatus, OpGPSStatus, OpGPSStatusAlt, OpGPSOffline, OpGPSDog, OpGPSPhone, OpExtendedGPS:
		return true
	default:
		return false
	}
}

// IsLBS reports whether op carries a cell-tower-only record.
func IsLBS(op Opcode) bool {
	switch op {
	case OpLBSPhone, OpLBSExtend, OpLBSMultiple:
		return true
	default:
		return false
	}
}

// Location is a decoded GPS fix (spec §3).
type Location struct {
	Latitude   float64
	Longitude  float64
	Altitude   int16
	SpeedKMH   uint8
	Course     uint16
	Satellites uint8
	Valid      bool
	Year       int
	Month      int
	Day        int
	Hour       int
	Minute     int
	Second     int
}

// Status is a decoded 0x13 status record.
type Status struct {
	Raw        byte
	BatteryPct uint8
	SignalPct  uint8
	AlarmBits  byte
}

// LBS is a decoded cell-tower-only record.
type LBS struct {
	MCC uint16
	MNC uint8
	LAC uint16
	CID uint32
}

// CommandResponse is a decoded 0x8A echo of a server-sent command.
type CommandResponse struct {
	Serial uint16
	Raw    []byte
}

// ErrUnparsable reports a body that was structurally present but could
// not be decoded into the opcode's expected shape. It is never fatal:
// the caller still ACKs and updates session activity (spec §4.2, §7).
type ErrUnparsable struct {
	Opcode Opcode
	Reason string
}

func (e *ErrUnparsable) Error() string {
	return fmt.Sprintf("payload: opcode 0x%02X unparsable: %s", byte(e.Opcode), e.Reason)
}

func unparsable(op Opcode, format string, args ...any) error {
	return &ErrUnparsable{Opcode: op, Reason: fmt.Sprintf(format, args...)}
}
