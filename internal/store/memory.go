package store

import (
	"context"
	"strings"
	"sync"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// MemoryStore keeps records in process memory. It backs tests and local
// development and offers a true compare-and-swap.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts []domain.Account
	entries  []domain.CatalogEntry
}

// NewMemoryStore creates a store seeded with copies of the given records
func NewMemoryStore(accounts []domain.Account, entries []domain.CatalogEntry) *MemoryStore {
	return &MemoryStore{
		accounts: append([]domain.Account(nil), accounts...),
		entries:  append([]domain.CatalogEntry(nil), entries...),
	}
}

func (s *MemoryStore) accountIndex(email string) int {
	email = strings.TrimSpace(email)
	for i := range s.accounts {
		if strings.EqualFold(s.accounts[i].Email, email) {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) entryIndex(displayName string) int {
	displayName = strings.TrimSpace(displayName)
	for i := range s.entries {
		if strings.TrimSpace(s.entries[i].DisplayName) == displayName {
			return i
		}
	}
	return -1
}

// FindAccountByEmail implements RecordStore
func (s *MemoryStore) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.accountIndex(email)
	if i < 0 {
		return nil, ErrAccountNotFound
	}
	account := s.accounts[i]
	return &account, nil
}

// UpdateAccountDeviceBinding implements RecordStore
func (s *MemoryStore) UpdateAccountDeviceBinding(_ context.Context, email, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.accountIndex(email)
	if i < 0 {
		return ErrAccountNotFound
	}
	s.accounts[i].DeviceFingerprint = fingerprint
	return nil
}

// ListCatalogEntries implements RecordStore
func (s *MemoryStore) ListCatalogEntries(context.Context) ([]domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.CatalogEntry(nil), s.entries...), nil
}

// UpdateCatalogSerialKey implements RecordStore
func (s *MemoryStore) UpdateCatalogSerialKey(_ context.Context, displayName, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.entryIndex(displayName)
	if i < 0 {
		return ErrEntryNotFound
	}
	s.entries[i].SerialKey = newKey
	return nil
}

// CompareAndSwapSerialKey implements RecordStore
func (s *MemoryStore) CompareAndSwapSerialKey(_ context.Context, displayName, oldKey, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.entryIndex(displayName)
	if i < 0 {
		return ErrEntryNotFound
	}
	if strings.TrimSpace(s.entries[i].SerialKey) != strings.TrimSpace(oldKey) {
		return ErrKeyConflict
	}
	s.entries[i].SerialKey = newKey
	return nil
}
