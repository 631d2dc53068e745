package types

import "time"

// Account is the local profile of a signed-up user.
type Account struct {
	Telephone Telephone `json:"telephone"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
