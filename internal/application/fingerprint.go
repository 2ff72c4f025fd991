package application

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
)

const (
	fingerprintSeparator = "||"
	fingerprintFallback  = "unknown"
)

// Fingerprint derives the storage passphrase from the client environment: the
// attributes are joined in fixed order and hashed with SHA-256 (lowercase hex).
// Blank attributes are replaced with a fixed fallback so a missing signal never
// fails derivation. The result is stable for an unchanged environment only.
func Fingerprint(env model.Environment) string {
	attrs := env.Attributes()
	for i, a := range attrs {
		if strings.TrimSpace(a) == "" {
			attrs[i] = fingerprintFallback
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(attrs, fingerprintSeparator)))
	return hex.EncodeToString(sum[:])
}
