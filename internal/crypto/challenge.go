package crypto

import "duet/internal/domain"

// Challenge is the fixed message every envelope signature covers. It proves
// possession of the signing key, not the integrity of the body.
const Challenge = "duet-session-challenge-v1"

// SignChallenge returns the base64 signature placed in Envelope.SignedMessage.
func SignChallenge(priv domain.Ed25519Private) string {
	return B64(SignEd25519(priv, []byte(Challenge)))
}

// VerifyChallenge checks a SignedMessage against pub.
func VerifyChallenge(pub domain.Ed25519Public, signed string) bool {
	sig, err := FromB64(signed)
	if err != nil {
		return false
	}
	return VerifyEd25519(pub, []byte(Challenge), sig)
}
