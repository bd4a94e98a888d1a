package connstate

import "github.com/taoyao-code/gt06-gateway/internal/gt06/registry"

// DetectVariant classifies a device sub-family from its login frame's
// body length (spec §4.5 "Variant detection"). It is called for every
// login frame, but CreateOrRebind records the result only when it
// creates a brand-new session, so a later rebind never re-classifies
// the device.
//
// By the time this is called, payload.DecodeIMEI has already accepted
// the body, which guarantees loginBodyLen >= 8 — so the spec's own
// ">= 8" GT06_STANDARD fallback clause is always satisfied and only
// the ordering of the first two cases matters.
func DetectVariant(loginBodyLen int) registry.Variant {
	switch {
	case loginBodyLen <= 12:
		return registry.VariantV5
	case loginBodyLen <= 16:
		return registry.VariantSK05
	default:
		return registry.VariantGT06Standard
	}
}
