package types

// NumberedKey is a one-time prekey public half with its pool number.
type NumberedKey struct {
	ID  int          `json:"id"`
	Pub X25519Public `json:"key"`
}

// Registration is the public key material an account publishes at signup.
type Registration struct {
	Name    string        `json:"name"`
	IK      X25519Public  `json:"IK"`
	SPK     X25519Public  `json:"SPK"`
	Signing Ed25519Public `json:"ed_key"`
	OPKs    []NumberedKey `json:"opks"`
}
