package payload

import "regexp"

var imeiPattern = regexp.MustCompile(`^[0-9]{15}$`)

// DecodeIMEI reads the first 8 body bytes of a login frame as
// BCD-packed nibbles and returns the 15-digit IMEI string. A leading
// zero nibble is stripped only when the raw decode is 16 digits long
// (grounded on the original decoder's exact carve-out), and the final
// string must match [0-9]{15}.
func DecodeIMEI(body []byte) (string, error) {
	if len(body) < 8 {
		return "", unparsable(OpLogin, "body too short for IMEI: %d bytes", len(body))
	}

	digits := make([]byte, 0, 16)
	for _, b := range body[:8] {
		hi := (b >> 4) & 0x0F
		lo := b & 0x0F
		if hi > 9 || lo > 9 {
			return "", unparsable(OpLogin, "invalid BCD nibble in byte 0x%02X", b)
		}
		digits = append(digits, '0'+hi, '0'+lo)
	}

	s := string(digits)
	if len(s) == 16 && s[0] == '0' {
		s = s[1:]
	}
	if !imeiPattern.MatchString(s) {
		return "", unparsable(OpLogin, "decoded IMEI %q does not match [0-9]{15}", s)
	}
	return s, nil
}
