package payload

// Decoded holds whichever typed record an opcode produced. At most one
// of the record fields is populated; connstate branches on which one is
// non-nil.
type Decoded struct {
	Opcode   Opcode
	Location *Location
	Status   *Status
	LBS      *LBS
	LBSMulti []*LBS
	CmdResp  *CommandResponse
}

// Decode dispatches body to the decoder registered for op. Heartbeat
// and login are handled by the caller (connstate) since they drive
// session lifecycle rather than producing a telemetry record; Decode
// covers every opcode that yields a Decoded payload.
func Decode(op Opcode, body []byte) (*Decoded, error) {
	switch op {
	case OpGPSLBS, OpGPSLBSStatus, OpGPSStatus, OpGPSStatusAlt, OpGPSOffline, OpGPSDog:
		loc, err := DecodeLocation(op, body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Opcode: op, Location: loc}, nil

	case OpGPSPhone:
		loc, err := DecodeGPSPhone(body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Opcode: op, Location: loc}, nil

	case OpExtendedGPS:
		loc, err := DecodeExtendedLocation(body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Opcode: op, Location: loc}, nil

	case OpStatus:
		st, err := DecodeStatus(body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Opcode: op, Status: st}, nil

	case OpLBSPhone, OpLBSExtend:
		lbs, err := DecodeLBS(op, body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Opcode: op, LBS: lbs}, nil

	case OpLBSMultiple:
		recs, err := DecodeLBSMultiple(body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Opcode: op, LBSMulti: recs}, nil

	case OpCommandResponse:
		resp, err := DecodeCommandResponse(body)
		if err != nil {
			return nil, err
		}
		return &Decoded{Opcode: op, CmdResp: resp}, nil

	default:
		return nil, unparsable(op, "no decoder registered for this opcode")
	}
}
