package payload

import "encoding/binary"

// DecodeCommandResponse decodes a 0x8A body: the server-assigned serial
// this response correlates to, followed by the device's raw echo.
func DecodeCommandResponse(body []byte) (*CommandResponse, error) {
	if len(body) < 2 {
		return nil, unparsable(OpCommandResponse, "body too short for correlation serial: %d bytes", len(body))
	}
	serial := binary.BigEndian.Uint16(body[:2])
	return &CommandResponse{
		Serial: serial,
		Raw:    append([]byte(nil), body[2:]...),
	}, nil
}
