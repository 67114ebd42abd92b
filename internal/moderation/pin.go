package moderation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"cpmboard/internal/listing"
)

// HashPin returns the hex-encoded SHA-256 digest of a PIN. The plaintext
// PIN is never stored; clients that hash locally produce the same digest.
func HashPin(pin string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(pin)))
	return hex.EncodeToString(sum[:])
}

// authorize is the single ownership/PIN rule gating edit and delete.
//
// Ownership is the primary gate: a listing with a non-empty OwnerID can only
// be touched by that device, no matter what PIN is presented. When the
// listing carries a PIN digest, the caller must additionally supply a
// matching PIN — an extra factor layered on top of ownership, never a
// substitute for it. Listings with an empty OwnerID (anonymous) skip the
// ownership check but keep the PIN gate.
func authorize(l *listing.Listing, deviceID, pin string) error {
	if l.OwnerID != "" && l.OwnerID != deviceID {
		return listing.ErrForbidden
	}
	if l.HasPin() {
		if strings.TrimSpace(pin) == "" || HashPin(pin) != l.PinHash {
			return listing.ErrInvalidPin
		}
	}
	return nil
}
