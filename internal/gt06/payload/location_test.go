package payload

import (
	"encoding/binary"
	"math"
	"testing"
)

func buildStandardLocationBody(t *testing.T, latRaw, lonRaw uint32, speed byte, courseStatus uint16, altitude int16, withAltitude bool) []byte {
	t.Helper()
	body := []byte{24, 3, 15, 12, 34, 56} // 2024-03-15 12:34:56
	body = append(body, 0x0C)             // gps info length
	body = append(body, 8)                // satellites
	latBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(latBuf, latRaw)
	body = append(body, latBuf...)
	lonBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lonBuf, lonRaw)
	body = append(body, lonBuf...)
	body = append(body, speed)
	csBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(csBuf, courseStatus)
	body = append(body, csBuf...)
	if withAltitude {
		altBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(altBuf, uint16(altitude))
		body = append(body, altBuf...)
	}
	return body
}

func TestDecodeLocationNorthEastValid(t *testing.T) {
	latRaw := uint32(10.7 * 1800000)
	lonRaw := uint32(76.5 * 1800000)
	courseStatus := uint16(88) | (1 << 12) // GPS valid, course=88, north/east
	body := buildStandardLocationBody(t, latRaw, lonRaw, 60, courseStatus, 0, false)

	loc, err := DecodeLocation(OpGPSLBS, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(loc.Latitude-10.7) > 0.001 {
		t.Errorf("latitude = %f, want ~10.7", loc.Latitude)
	}
	if math.Abs(loc.Longitude-76.5) > 0.001 {
		t.Errorf("longitude = %f, want ~76.5", loc.Longitude)
	}
	if loc.SpeedKMH != 60 {
		t.Errorf("speed = %d, want 60", loc.SpeedKMH)
	}
	if loc.Course != 88 {
		t.Errorf("course = %d, want 88", loc.Course)
	}
	if !loc.Valid {
		t.Errorf("expected Valid=true")
	}
	if loc.Year != 2024 || loc.Month != 3 || loc.Day != 15 {
		t.Errorf("date = %04d-%02d-%02d, want 2024-03-15", loc.Year, loc.Month, loc.Day)
	}
}

func TestDecodeLocationSouthWestHemisphere(t *testing.T) {
	latRaw := uint32(33.0 * 1800000)
	lonRaw := uint32(70.0 * 1800000)
	courseStatus := uint16(0) | (1 << 10) | (1 << 11) | (1 << 12) // south+west+valid
	body := buildStandardLocationBody(t, latRaw, lonRaw, 0, courseStatus, 0, false)

	loc, err := DecodeLocation(OpGPSLBS, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Latitude >= 0 {
		t.Errorf("expected negative latitude for south flag, got %f", loc.Latitude)
	}
	if loc.Longitude >= 0 {
		t.Errorf("expected negative longitude for west flag, got %f", loc.Longitude)
	}
}

func TestDecodeLocationWithAltitude(t *testing.T) {
	body := buildStandardLocationBody(t, uint32(1*1800000), uint32(1*1800000), 10, 1<<12, -15, true)
	loc, err := DecodeLocation(OpGPSLBS, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Altitude != -15 {
		t.Errorf("altitude = %d, want -15", loc.Altitude)
	}
}

func TestDecodeLocationRejectsInvalidDate(t *testing.T) {
	body := buildStandardLocationBody(t, uint32(1*1800000), uint32(1*1800000), 0, 0, 0, false)
	body[1] = 13 // invalid month
	if _, err := DecodeLocation(OpGPSLBS, body); err == nil {
		t.Fatal("expected error for invalid month")
	}
}

func TestDecodeLocationRejectsTooShortBody(t *testing.T) {
	if _, err := DecodeLocation(OpGPSLBS, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for too-short body")
	}
}

func TestDecodeGPSPhoneSkipsPrefix(t *testing.T) {
	inner := buildStandardLocationBody(t, uint32(5*1800000), uint32(5*1800000), 1, 1<<12, 0, false)
	body := append([]byte{0x00, 0x11, 0x22, 0x33}, inner...)

	loc, err := DecodeGPSPhone(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(loc.Latitude-5) > 0.001 {
		t.Errorf("latitude = %f, want ~5", loc.Latitude)
	}
}

func TestDecodeExtendedLocationFindsWindow(t *testing.T) {
	latRaw := uint32(12.5 * 1800000)
	lonRaw := uint32(45.25 * 1800000)
	latBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(latBuf, latRaw)
	lonBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lonBuf, lonRaw)

	body := append([]byte{0xDE, 0xAD, 0xBE, 0xEF}, append(latBuf, lonBuf...)...)
	loc, err := DecodeExtendedLocation(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(loc.Latitude-12.5) > 0.001 || math.Abs(loc.Longitude-45.25) > 0.001 {
		t.Errorf("got lat=%f lon=%f, want 12.5/45.25", loc.Latitude, loc.Longitude)
	}
}

func TestDecodeExtendedLocationSkipsIMEIEcho(t *testing.T) {
	imeiEcho := make([]byte, 8)
	latRaw := uint32(1 * 1800000)
	lonRaw := uint32(2 * 1800000)
	latBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(latBuf, latRaw)
	lonBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lonBuf, lonRaw)
	padding := make([]byte, 14) // push body length past the echo threshold

	body := append(append(append([]byte{}, imeiEcho...), padding...), append(latBuf, lonBuf...)...)
	if len(body) <= extendedIMEIEchoThreshold {
		t.Fatalf("test body too short to exercise IMEI-echo skip: %d bytes", len(body))
	}

	loc, err := DecodeExtendedLocation(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(loc.Latitude-1) > 0.001 || math.Abs(loc.Longitude-2) > 0.001 {
		t.Errorf("got lat=%f lon=%f, want 1/2", loc.Latitude, loc.Longitude)
	}
}

func TestDecodeExtendedLocationNoPlausibleWindow(t *testing.T) {
	body := make([]byte, 10)
	if _, err := DecodeExtendedLocation(body); err == nil {
		t.Fatal("expected error when no window decodes to a plausible fix")
	}
}
