// Package store adapts the external record store that holds accounts and the
// mod catalog. Drivers locate columns by header name, so column order in the
// backing spreadsheet is free.
package store

import (
	"context"
	"errors"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

var (
	// ErrAccountNotFound is returned when no account row has the email
	ErrAccountNotFound = errors.New("account not found")

	// ErrEntryNotFound is returned when no catalog row has the display name
	ErrEntryNotFound = errors.New("catalog entry not found")

	// ErrKeyConflict is returned by CompareAndSwapSerialKey when the stored
	// key no longer equals the expected one
	ErrKeyConflict = errors.New("serial key changed concurrently")
)

// RecordStore reads and writes account and catalog records
type RecordStore interface {
	// FindAccountByEmail returns ErrAccountNotFound when the email is unknown
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)

	// UpdateAccountDeviceBinding writes the device fingerprint of an account
	UpdateAccountDeviceBinding(ctx context.Context, email, fingerprint string) error

	// ListCatalogEntries returns catalog rows in store order, including rows
	// that are not listable
	ListCatalogEntries(ctx context.Context) ([]domain.CatalogEntry, error)

	// UpdateCatalogSerialKey overwrites the serial key of an entry
	UpdateCatalogSerialKey(ctx context.Context, displayName, newKey string) error

	// CompareAndSwapSerialKey replaces the key only if the stored value,
	// trimmed, still equals oldKey. Otherwise it returns ErrKeyConflict.
	CompareAndSwapSerialKey(ctx context.Context, displayName, oldKey, newKey string) error
}
