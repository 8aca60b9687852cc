package core

import "time"

// PairingToken is a short-lived one-time code proving operator
// authorization to trust a new peer. A token may be consumed at most
// once and only before expiry.
type PairingToken struct {
	Code      string    `json:"code" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Used      bool      `json:"used" db:"used"`
}

func (t *PairingToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Valid reports whether the token may still be consumed at the given
// moment.
func (t *PairingToken) Valid(now time.Time) bool {
	return !t.Used && !t.Expired(now)
}
