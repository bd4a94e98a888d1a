package payload

import "encoding/binary"

const standardLocationMinLen = 19 // date-time(6) + gps-len(1) + sats(1) + lat(4) + lon(4) + speed(1) + course(2)

// DecodeLocation parses the standard GT06 location layout shared by
// 0x12/0x22/0x16/0x26/0x15/0x32 and (after its 4-byte phone prefix is
// skipped by the caller) 0x1A. Altitude is optional — present only when
// two trailing bytes remain after the course/status word.
func DecodeLocation(op Opcode, body []byte) (*Location, error) {
	if len(body) < standardLocationMinLen {
		return nil, unparsable(op, "body too short for location: %d bytes", len(body))
	}

	year, month, day := int(body[0]), int(body[1]), int(body[2])
	hour, minute, second := int(body[3]), int(body[4]), int(body[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return nil, unparsable(op, "invalid date/time %02d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second)
	}
	fullYear := 2000 + year
	if year > 50 {
		fullYear = 1900 + year
	}

	gpsInfoLen := body[6]
	satellites := body[7]
	_ = gpsInfoLen

	latRaw := binary.BigEndian.Uint32(body[8:12])
	lonRaw := binary.BigEndian.Uint32(body[12:16])
	lat := float64(latRaw) / 1800000.0
	lon := float64(lonRaw) / 1800000.0

	speed := body[16]
	courseStatus := binary.BigEndian.Uint16(body[17:19])

	course := courseStatus & 0x03FF
	southFlag := courseStatus&(1<<10) != 0
	westFlag := courseStatus&(1<<11) != 0
	gpsValid := courseStatus&(1<<12) != 0

	if southFlag {
		lat = -lat
	}
	if westFlag {
		lon = -lon
	}
	if lat > 90 || lat < -90 || lon > 180 || lon < -180 {
		return nil, unparsable(op, "coordinates out of range lat=%f lon=%f", lat, lon)
	}

	var altitude int16
	rest := body[19:]
	if len(rest) >= 2 {
		altitude = int16(binary.BigEndian.Uint16(rest[:2]))
	}

	return &Location{
		Latitude:   lat,
		Longitude:  lon,
		Altitude:   altitude,
		SpeedKMH:   speed,
		Course:     course,
		Satellites: satellites,
		Valid:      gpsValid,
		Year:       fullYear,
		Month:      month,
		Day:        day,
		Hour:       hour,
		Minute:     minute,
		Second:     second,
	}, nil
}

// phonePrefixLen is the length of the phone-number prefix that 0x1A
// frames carry ahead of the standard location layout.
const phonePrefixLen = 4

// DecodeGPSPhone decodes a 0x1A frame: skip the 4-byte phone prefix,
// then apply the standard location layout.
func DecodeGPSPhone(body []byte) (*Location, error) {
	if len(body) < phonePrefixLen {
		return nil, unparsable(OpGPSPhone, "body too short for phone prefix: %d bytes", len(body))
	}
	return DecodeLocation(OpGPSPhone, body[phonePrefixLen:])
}

// extendedIMEIEchoThreshold is the body-length floor past which the
// spec's 0x94 layout is assumed to include an 8-byte IMEI echo.
const extendedIMEIEchoThreshold = 20

// DecodeExtendedLocation decodes a 0x94 frame. Vendors ship incompatible
// encodings for this opcode, so rather than a single fixed layout the
// parser scans for the first 8-byte window that plausibly decodes to a
// valid (lat, lon) pair, per spec §4.2's documented heuristic. An
// optional 8-byte IMEI echo is skipped first when the body is long
// enough to plausibly carry one.
func DecodeExtendedLocation(body []byte) (*Location, error) {
	search := body
	if len(search) > extendedIMEIEchoThreshold {
		search = search[8:]
	}

	for off := 0; off+8 <= len(search); off++ {
		latRaw := binary.BigEndian.Uint32(search[off : off+4])
		lonRaw := binary.BigEndian.Uint32(search[off+4 : off+8])
		lat := float64(latRaw) / 1800000.0
		lon := float64(lonRaw) / 1800000.0
		if lat == 0 && lon == 0 {
			continue
		}
		if lat > 90 || lat < -90 || lon > 180 || lon < -180 {
			continue
		}
		return &Location{Latitude: lat, Longitude: lon, Valid: true}, nil
	}
	return nil, unparsable(OpExtendedGPS, "no plausible lat/lon window found in %d-byte body", len(body))
}
