package ratchet

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/util/memzero"
)

const (
	stepSize = 80 // next-state 32, key 32, IV 16
	keySize  = 32
	ivSize   = aes.BlockSize
)

var errBadPadding = errors.New("invalid PKCS#7 padding")

// chain is a one-shot symmetric KDF step seeded from a root step output.
type chain struct {
	seed [32]byte
	used bool
}

// SendChain yields the key and IV for exactly one outgoing message.
type SendChain struct{ c chain }

// ReceiveChain yields the key and IV for exactly one incoming message.
type ReceiveChain struct{ c chain }

// InitRoot seeds a root ratchet from an X3DH shared secret.
func InitRoot(secret []byte) (domain.RootRatchet, error) {
	var root domain.RootRatchet
	if len(secret) != len(root) {
		return root, fmt.Errorf("root secret must be %d bytes, got %d", len(root), len(secret))
	}
	copy(root[:], secret)
	return root, nil
}

// RotateForSend replaces set.DHRatchet with a fresh key pair, advances the
// root with DH(new, peerPub) and returns the chain for the next message.
// The new public key is returned so the caller can transmit it.
func RotateForSend(set *domain.RatchetSet, peerPub domain.X25519Public) (*SendChain, domain.X25519Public, error) {
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, domain.X25519Public{}, err
	}
	seed, err := kdfRK(&set.Root, priv, peerPub)
	if err != nil {
		return nil, domain.X25519Public{}, err
	}
	set.DHRatchet = priv
	return &SendChain{c: chain{seed: seed}}, pub, nil
}

// RotateForReceive advances the root with DH(set.DHRatchet, peerPub). The
// local ratchet key is left untouched.
func RotateForReceive(set *domain.RatchetSet, peerPub domain.X25519Public) (*ReceiveChain, error) {
	seed, err := kdfRK(&set.Root, set.DHRatchet, peerPub)
	if err != nil {
		return nil, err
	}
	return &ReceiveChain{c: chain{seed: seed}}, nil
}

// Encrypt pads plaintext with PKCS#7 and encrypts it with AES-256-CBC under
// the chain's key and IV. The chain cannot be used again.
func Encrypt(sc *SendChain, plaintext []byte) ([]byte, error) {
	key, iv, err := sc.c.next()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	buf := pad(plaintext)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, buf)
	return buf, nil
}

// Decrypt reverses Encrypt. Malformed ciphertext or padding is reported as
// domain.ErrDecryptionFailed.
func Decrypt(rc *ReceiveChain, ciphertext []byte) ([]byte, error) {
	key, iv, err := rc.c.next()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", domain.ErrDecryptionFailed, len(ciphertext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, ciphertext)
	pt, err := unpad(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	return pt, nil
}

// --- helpers ---

// kdfRK performs one root step: HKDF(state ‖ DH(priv, pub), 80). The root
// state becomes bytes [0:32] and bytes [32:64] seed the returned chain.
func kdfRK(root *domain.RootRatchet, priv domain.X25519Private, pub domain.X25519Public) ([32]byte, error) {
	var seed [32]byte
	dh, err := crypto.DH(priv, pub)
	if err != nil {
		return seed, err
	}
	ikm := make([]byte, 0, len(root)+len(dh))
	ikm = append(ikm, root[:]...)
	ikm = append(ikm, dh[:]...)
	memzero.Zero(dh[:])

	out, err := crypto.DeriveKey(ikm, stepSize)
	memzero.Zero(ikm)
	if err != nil {
		return seed, err
	}
	copy(root[:], out[:32])
	copy(seed[:], out[32:64])
	memzero.Zero(out)
	return seed, nil
}

// next consumes the chain: HKDF(seed, 80) split into {_, key, IV}.
func (c *chain) next() (key, iv []byte, err error) {
	if c.used {
		return nil, nil, domain.ErrChainConsumed
	}
	c.used = true

	out, err := crypto.DeriveKey(c.seed[:], stepSize)
	memzero.Zero(c.seed[:])
	if err != nil {
		return nil, nil, err
	}
	key = append([]byte(nil), out[32:32+keySize]...)
	iv = append([]byte(nil), out[32+keySize:]...)
	memzero.Zero(out)
	return key, iv, nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errBadPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, errBadPadding
		}
	}
	return b[:len(b)-n], nil
}
