// Package command builds outbound GT06 command frames. It is pure: it
// never touches a network connection. Delivery — looking up the
// session's bound connection and writing the frame — is the caller's
// concern (spec §4.3 "Delivery contract").
package command

import (
	"fmt"

	"github.com/taoyao-code/gt06-gateway/internal/gt06/frame"
)

// Kind identifies an outbound command type.
type Kind string

const (
	KindImmobilize Kind = "IMMOBILIZE"
	KindSiren      Kind = "SIREN"
	KindLocate     Kind = "LOCATE"
	KindGeneric    Kind = "GENERIC"
)

// Protocol opcodes used by command-carrying frames. LOCATE rides on
// the same opcode as a command-response ACK (0x8A); every other kind
// uses the generic command opcode 0x80.
const (
	opcodeCommand byte = 0x80
	opcodeLocate  byte = 0x8A
)

// Descriptor is an outbound command request (spec §4.3 "Inputs").
type Descriptor struct {
	IMEI       string
	Kind       Kind
	Parameters map[string]string
}

// ErrUnknownKind reports a Descriptor whose Kind is not one of the four
// kinds above (the zero-value Kind included).
type ErrUnknownKind struct{ Kind Kind }

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("command: unknown kind %q", e.Kind)
}

// Build serializes d into a ready-to-write GT06 frame using serial as
// the outbound sequence number (server-side monotonic per session,
// spec §4.3 "Frame shape").
func Build(d Descriptor, serial uint16) ([]byte, error) {
	switch d.Kind {
	case KindImmobilize:
		action := d.Parameters["action"]
		body := "HFYD#"
		if action != "disable" {
			body = "DYD#"
		}
		return frame.Encode(opcodeCommand, []byte(body), serial), nil

	case KindSiren:
		enable := d.Parameters["enable"] != "false"
		body := "DXDY#"
		if !enable {
			body = "QXDY#"
		}
		return frame.Encode(opcodeCommand, []byte(body), serial), nil

	case KindLocate:
		return frame.Encode(opcodeLocate, nil, serial), nil

	case KindGeneric:
		body := d.Parameters["command"] + "#"
		return frame.Encode(opcodeCommand, []byte(body), serial), nil

	default:
		return nil, &ErrUnknownKind{Kind: d.Kind}
	}
}
