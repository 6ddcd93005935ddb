package user

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/laurinbuild/kantine/core"
)

// HashPIN returns the SHA-256 digest of a PIN. PINs are short numeric codes
// typed on a shared touch screen; bcrypt latency per tap is not acceptable
// there, and the digest only ever guards a canteen tab.
func HashPIN(pin string) []byte {
	sum := sha256.Sum256([]byte(pin))
	return sum[:]
}

func comparePINHash(hash []byte, pin string) bool {
	return subtle.ConstantTimeCompare(hash, HashPIN(pin)) == 1
}

// ArchiveIdentifier derives the stable key a user's PIN is archived under, so
// the PIN survives a database restore that reassigns numeric IDs. Users with
// an Itslearning account are keyed by it; everyone else by normalized name.
// Returns "" when the user carries neither.
func ArchiveIdentifier(usr User) string {
	if usr.ItslID.Valid && usr.ItslID.Int != 0 {
		return fmt.Sprintf("itsl:%d", usr.ItslID.Int)
	}
	first := core.CleanString(usr.FirstName, true /* lower */)
	last := core.CleanString(usr.LastName, true /* lower */)
	if first == "" && last == "" {
		return ""
	}
	return fmt.Sprintf("name:%s::%s", first, last)
}

// NormalizePIN strips surrounding whitespace; digits are validated separately.
func NormalizePIN(pin string) string {
	return strings.TrimSpace(pin)
}
