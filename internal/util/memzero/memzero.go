// Package memzero wipes secret material from memory.
package memzero

import "crypto/subtle"

// Zero overwrites b with zeros in a constant-time friendly way.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	zero := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zero)
}

// Keys wipes fixed-size private keys once a handshake no longer needs them.
func Keys[K ~[32]byte](keys ...*K) {
	for _, k := range keys {
		if k == nil {
			continue
		}
		for i := range *k {
			(*k)[i] = 0
		}
	}
}
