package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintBytes is how much of the digest is shown.
const fingerprintBytes = 10

// Fingerprint returns a short fingerprint of a public key for comparing
// identities out of band: the first 10 bytes of its SHA-256, as hex in
// groups of four, e.g. "3f2a 91c0 ...".
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	h := hex.EncodeToString(sum[:fingerprintBytes])
	groups := make([]string, 0, len(h)/4)
	for i := 0; i < len(h); i += 4 {
		groups = append(groups, h[i:i+4])
	}
	return strings.Join(groups, " ")
}
