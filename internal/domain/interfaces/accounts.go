package interfaces

import domaintypes "duet/internal/domain/types"

// AccountStore persists local account profiles.
type AccountStore interface {
	SaveAccount(account domaintypes.Account) error
	LoadAccount(telephone domaintypes.Telephone) (domaintypes.Account, bool, error)
}

// RegistrationStore caches the public key material published at signup.
type RegistrationStore interface {
	SaveRegistration(reg domaintypes.Registration) error
	LoadRegistration() (domaintypes.Registration, bool, error)
}
