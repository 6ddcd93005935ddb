// Package staff covers the admin side of the kiosk: token-based admin
// authentication and the access audit trail.
package staff

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

var ErrInvalidToken = errors.New("invalid admin token")

// AccessLog records an admin authentication attempt, successful or not.
type AccessLog struct {
	ID               int         `json:"id" db:"id"`
	IPAddress        string      `json:"ip_address" db:"ip_address"`
	UserAgent        null.String `json:"user_agent" db:"user_agent"`
	DeviceName       null.String `json:"device_name" db:"device_name"`
	TokenFingerprint null.String `json:"token_fingerprint" db:"token_fingerprint"`
	Success          bool        `json:"success" db:"success"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"` // UTC
}

// Attempt is what an admin login request carries.
type Attempt struct {
	Token      string
	IPAddress  string
	UserAgent  string
	DeviceName string
}

// Status is the security overview shown on the admin dashboard.
type Status struct {
	AdminConfigured bool        `json:"admin_configured"`
	RecentAttempts  []AccessLog `json:"recent_attempts"`
	RecentFailures  int         `json:"recent_failures"`
}

// GenerateToken returns a fresh urlsafe admin token. The token itself is the
// secret; deployments set it as the admin secret key.
func GenerateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "generating admin token")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// VerifyToken compares the presented token against the configured secret via
// SHA-256 digests in constant time.
func VerifyToken(presented, secret string) bool {
	if presented == "" || secret == "" {
		return false
	}
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// Fingerprint is the loggable form of a token attempt; enough to correlate
// attempts without persisting the token itself.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
