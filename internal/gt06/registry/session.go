// Package registry implements the session registry (spec §4.4): the
// sole owner of DeviceSession records, indexed by id, IMEI, and
// connection. by_id and by_imei are mirrored to an external key-value
// store with a TTL; by_connection is process-local only, since
// connections never survive a process restart.
package registry

import "time"

// Variant is a device sub-family inferred once at login (spec §4.5
// "Variant detection"). It is never recomputed after the login frame.
type Variant string

const (
	VariantV5           Variant = "V5"
	VariantSK05         Variant = "SK05"
	VariantGT06Standard Variant = "GT06_STANDARD"
	// VariantGT06Unknown is named by spec.md's device_variant enum but
	// unreachable from connstate.DetectVariant: its GT06_STANDARD branch
	// is a fallback matching any login body of at least 8 bytes, and
	// login never reaches variant detection with a shorter body (IMEI
	// decode already requires 8 bytes). Kept for a caller that
	// constructs a DeviceSession before a variant has been classified.
	VariantGT06Unknown Variant = "GT06_UNKNOWN"
)

// DeviceSession is the single logical record per device (spec §3). It
// is owned exclusively by the registry; connections hold only its
// opaque ConnectionID, never a reference to the record itself.
type DeviceSession struct {
	ID            string
	IMEI          string
	ConnectionID  string
	RemoteAddress string

	CreatedAt      time.Time
	LastActivityAt time.Time

	Authenticated           bool
	HasReceivedStatusAdvice bool
	HasReceivedLocation     bool

	DeviceVariant Variant

	Attributes map[string]string
}

// clone returns a shallow copy safe to hand to a caller without
// letting them mutate the registry's own record through the returned
// pointer.
func (s *DeviceSession) clone() *DeviceSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Attributes = make(map[string]string, len(s.Attributes))
	for k, v := range s.Attributes {
		cp.Attributes[k] = v
	}
	return &cp
}
