// Package domain contains the core models shared by the licensing, catalog
// and installation layers. Every other layer converts to and from these types.
package domain

import (
	"strings"
	"time"
)

// Account is one row of the account table in the record store.
type Account struct {
	Email             string `json:"email" validate:"required,email"`
	Secret            string `json:"-"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
	Entitlements      string `json:"entitlements"` // comma-separated display names
}

// IsBound reports whether the account is already pinned to a device.
func (a *Account) IsBound() bool {
	return strings.TrimSpace(a.DeviceFingerprint) != ""
}

// Session identifies an authenticated account on a specific device.
// It is passed explicitly to every operation that acts on behalf of a user.
type Session struct {
	Email       string    `json:"email"`
	Fingerprint string    `json:"fingerprint"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
