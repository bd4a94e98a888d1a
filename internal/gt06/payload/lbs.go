package payload

import "encoding/binary"

const lbsRecordLen = 8 // MCC(2) + MNC(1) + LAC(2) + CID(3)

// DecodeLBS decodes 0x17/0x18 cell-info-only bodies: a 6-byte
// date-time prefix (ignored here, the caller has no GPS fix to pair it
// with) followed by one MCC/MNC/LAC/CID record.
func DecodeLBS(op Opcode, body []byte) (*LBS, error) {
	if len(body) < 6+lbsRecordLen {
		return nil, unparsable(op, "body too short for LBS record: %d bytes", len(body))
	}
	return decodeLBSRecord(op, body[6:6+lbsRecordLen])
}

// DecodeLBSMultiple decodes a 0x24 body: a 6-byte date-time prefix, a
// 1-byte record count, then that many 8-byte cell records.
func DecodeLBSMultiple(body []byte) ([]*LBS, error) {
	if len(body) < 7 {
		return nil, unparsable(OpLBSMultiple, "body too short for LBS header: %d bytes", len(body))
	}
	count := int(body[6])
	rest := body[7:]
	if len(rest) < count*lbsRecordLen {
		return nil, unparsable(OpLBSMultiple, "declared %d records but only %d bytes remain", count, len(rest))
	}

	records := make([]*LBS, 0, count)
	for i := 0; i < count; i++ {
		rec, err := decodeLBSRecord(OpLBSMultiple, rest[i*lbsRecordLen:(i+1)*lbsRecordLen])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeLBSRecord(op Opcode, rec []byte) (*LBS, error) {
	if len(rec) < lbsRecordLen {
		return nil, unparsable(op, "truncated LBS record: %d bytes", len(rec))
	}
	mcc := binary.BigEndian.Uint16(rec[0:2])
	mnc := rec[2]
	lac := binary.BigEndian.Uint16(rec[3:5])
	cid := uint32(rec[5])<<16 | uint32(rec[6])<<8 | uint32(rec[7])
	return &LBS{MCC: mcc, MNC: mnc, LAC: lac, CID: cid}, nil
}
