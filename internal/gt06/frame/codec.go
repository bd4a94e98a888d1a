package frame

import (
	"encoding/binary"
)

// Options tunes codec policy per §6.4.
type Options struct {
	// MaxFrameLength caps a candidate frame's total wire size. Zero
	// means MaxFrameLength (the package default, 1024).
	MaxFrameLength int
	// StrictCRC rejects frames whose declared CRC does not match the
	// computed CRC-ITU checksum. Default: false (log, accept anyway).
	StrictCRC bool
	// StrictStopBits rejects frames whose trailing two bytes are not
	// one of the accepted stop patterns. Default: false.
	StrictStopBits bool
}

func (o Options) maxFrameLength() int {
	if o.MaxFrameLength <= 0 {
		return MaxFrameLength
	}
	return o.MaxFrameLength
}

// Decoder reassembles a duplex byte stream into validated Frames. It
// holds no I/O state of its own — callers feed it bytes as they arrive
// and drain whatever frames became available. Safe for use by exactly
// one goroutine at a time (one decoder per connection).
type Decoder struct {
	buf     []byte
	opts    Options
	skipped int64 // cumulative bytes discarded as garbage, for diagnostics
}

// NewDecoder creates a stream decoder with the given policy options.
func NewDecoder(opts Options) *Decoder {
	return &Decoder{opts: opts}
}

// Skipped returns the cumulative number of garbage bytes this decoder
// has discarded while hunting for frame headers.
func (d *Decoder) Skipped() int64 { return d.skipped }

// Feed appends p to the internal buffer and decodes as many complete
// frames as are available. It never returns an error: malformed
// candidates are skipped one byte at a time and decoding continues
// (spec §4.1 "Failure semantics").
func (d *Decoder) Feed(p []byte) []*Frame {
	if len(p) > 0 {
		d.buf = append(d.buf, p...)
	}

	var out []*Frame
	maxLen := d.opts.maxFrameLength()

	for len(d.buf) >= MinFrameLength {
		// 1. scan for a header, discarding garbage ahead of it.
		idx := indexHeader(d.buf)
		if idx < 0 {
			// keep the last byte in case it's half of a header
			if len(d.buf) > 1 {
				d.skipped += int64(len(d.buf) - 1)
				d.buf = d.buf[len(d.buf)-1:]
			}
			return out
		}
		if idx > 0 {
			d.skipped += int64(idx)
			d.buf = d.buf[idx:]
		}

		header := binary.BigEndian.Uint16(d.buf[0:2])
		widthLen := lengthFieldWidth(header)
		if len(d.buf) < 2+widthLen {
			return out // await more bytes before we can read the length field
		}

		var declared int
		if widthLen == 1 {
			declared = int(d.buf[2])
		} else {
			declared = int(binary.BigEndian.Uint16(d.buf[2:4]))
		}

		total := 2 + widthLen + declared + 2 // +2 trailing stop bits
		// declared must at least cover protocol(1) + serial(2) + crc(2)
		if total > maxLen || total < MinFrameLength || declared < 5 {
			d.buf = d.buf[1:]
			d.skipped++
			continue
		}
		if len(d.buf) < total {
			return out // wait for the rest of this frame
		}

		raw := d.buf[:total]
		fr := d.parseCandidate(raw, header, widthLen, declared)
		d.buf = d.buf[total:]
		out = append(out, fr)
	}
	return out
}

func indexHeader(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		h := binary.BigEndian.Uint16(buf[i : i+2])
		if h == Header78 || h == Header79 {
			return i
		}
	}
	return -1
}

func (d *Decoder) parseCandidate(raw []byte, header uint16, widthLen, declared int) *Frame {
	protocolOff := 2 + widthLen
	protocol := raw[protocolOff]

	bodyLen := declared - 5 // protocol(1) + serial(2) + crc(2)
	if bodyLen < 0 {
		bodyLen = 0
	}
	bodyOff := protocolOff + 1
	body := raw[bodyOff : bodyOff+bodyLen]

	serialOff := bodyOff + bodyLen
	serial := binary.BigEndian.Uint16(raw[serialOff : serialOff+2])

	crcOff := serialOff + 2
	declaredCRC := binary.BigEndian.Uint16(raw[crcOff : crcOff+2])

	stopOff := crcOff + 2
	stopBits := binary.BigEndian.Uint16(raw[stopOff : stopOff+2])

	computedCRC := CRC16(raw[2 : crcOff])

	fr := &Frame{
		StartBits:          header,
		Length:             declared,
		Protocol:           protocol,
		Body:               append([]byte(nil), body...),
		Serial:             serial,
		CRC:                declaredCRC,
		StopBits:           stopBits,
		CRCValid:           computedCRC == declaredCRC,
		StopBitsRecognized: isValidStopBits(stopBits),
	}
	return fr
}

// Accept applies the codec's strict-mode gates to a decoded frame,
// telling the caller whether to reject it outright. Separated from
// Feed so callers can choose to log-and-accept (default) or
// log-and-reject (strict) without re-parsing.
func (o Options) Accept(fr *Frame) bool {
	if o.StrictCRC && !fr.CRCValid {
		return false
	}
	if o.StrictStopBits && !fr.StopBitsRecognized {
		return false
	}
	return true
}

// Encode builds the wire bytes for an outbound 0x7878-headed frame
// (spec §4.1 "Encode"): header ∥ len ∥ protocol ∥ body ∥ serial ∥ crc ∥
// stop. len counts protocol+body+serial+crc, i.e. len(body)+5.
func Encode(protocol byte, body []byte, serial uint16) []byte {
	contentLen := 1 + len(body) + 2 + 2 // protocol + body + serial + crc
	out := make([]byte, 0, 2+1+contentLen+2)

	out = appendUint16(out, Header78)
	out = append(out, byte(contentLen))
	out = append(out, protocol)
	out = append(out, body...)
	out = appendUint16(out, serial)

	crc := CRC16(out[2:])
	out = appendUint16(out, crc)
	out = appendUint16(out, Stop0D0A)
	return out
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}
