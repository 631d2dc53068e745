package identity

import (
	"errors"
	"fmt"

	"duet/internal/crypto"
	"duet/internal/domain"
)

// ErrNoRegistration is returned when keys are requested before signup.
var ErrNoRegistration = errors.New("no registration on this node")

// Service manages identity key creation and access.
//
// The identity contains:
//   - X25519 identity key (IK) and signed prekey (SPK) for X3DH.
//   - Ed25519 key pair for signing relay challenges.
//   - OneTimePreKeyCount X25519 one-time prekeys, numbered from 1.
type Service struct {
	keys domain.KeyStore
	regs domain.RegistrationStore
}

// New returns an identity service backed by the given stores.
func New(keys domain.KeyStore, regs domain.RegistrationStore) *Service {
	return &Service{keys: keys, regs: regs}
}

// GenerateKeys creates a fresh identity for name, replacing any previous
// key material, and returns the registration to publish at signup.
func (s *Service) GenerateKeys(name string) (domain.Registration, error) {
	ik, err := s.generateDH(domain.LabelIdentity)
	if err != nil {
		return domain.Registration{}, err
	}
	spk, err := s.generateDH(domain.LabelSignedPreKey)
	if err != nil {
		return domain.Registration{}, err
	}
	signing, err := s.keys.Generate(domain.LabelSigning, domain.KeySigning)
	if err != nil {
		return domain.Registration{}, err
	}

	opks, err := s.generateOneTimePreKeys(domain.OneTimePreKeyCount)
	if err != nil {
		return domain.Registration{}, err
	}

	reg := domain.Registration{
		Name:    name,
		IK:      ik,
		SPK:     spk,
		Signing: crypto.PublicEd25519(signing.Signing),
		OPKs:    opks,
	}
	if err := s.regs.SaveRegistration(reg); err != nil {
		return domain.Registration{}, err
	}
	return reg, nil
}

// SigningKey returns the Ed25519 key used to sign relay challenges.
func (s *Service) SigningKey() (domain.Ed25519Private, error) {
	k, err := s.keys.Load(domain.LabelSigning)
	if err != nil {
		return domain.Ed25519Private{}, err
	}
	if k.Kind != domain.KeySigning {
		return domain.Ed25519Private{}, fmt.Errorf("%s holds a %s key", domain.LabelSigning, k.Kind)
	}
	return k.Signing, nil
}

// Fingerprint returns a short fingerprint of the identity key.
func (s *Service) Fingerprint() (domain.Fingerprint, error) {
	reg, ok, err := s.regs.LoadRegistration()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoRegistration
	}
	return domain.Fingerprint(crypto.Fingerprint(reg.IK.Slice())), nil
}

// generateDH creates and stores an X25519 key under label and returns its
// public half.
func (s *Service) generateDH(label domain.KeyLabel) (domain.X25519Public, error) {
	k, err := s.keys.Generate(label, domain.KeyDH)
	if err != nil {
		return domain.X25519Public{}, err
	}
	return crypto.PublicX25519(k.DH)
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
