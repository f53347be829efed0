package license

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/internal/security"
	"github.com/Lynx96-creator/ets2-mod-api/internal/shared"
	"github.com/Lynx96-creator/ets2-mod-api/internal/store"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// Fingerprinter reports the fingerprint of the device the process runs on
type Fingerprinter interface {
	Current(ctx context.Context) (string, error)
}

// Manager authenticates accounts and validates serial keys
type Manager struct {
	store        store.RecordStore
	device       Fingerprinter
	logger       *slog.Logger
	metrics      *LicenseMetrics
	accountLocks shared.KeyedMutex
	entryLocks   shared.KeyedMutex
	newKey       func() string
	now          func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithMetrics records license metrics
func WithMetrics(metrics *LicenseMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithKeyGenerator replaces the serial key generator
func WithKeyGenerator(fn func() string) Option {
	return func(m *Manager) { m.newKey = fn }
}

// NewManager creates a license manager
func NewManager(records store.RecordStore, device Fingerprinter, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  records,
		device: device,
		logger: logger.With(slog.String("component", "license_manager")),
		newKey: GenerateSerialKey,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authenticate checks the credential of an account and enforces its device
// binding. The first successful login binds the account to this device.
func (m *Manager) Authenticate(ctx context.Context, email, credential string) (domain.Session, error) {
	var session domain.Session

	err := m.TraceAuthentication(ctx, func(ctx context.Context) error {
		email = strings.TrimSpace(email)
		if email == "" || credential == "" {
			return apperrors.Wrap(apperrors.ErrCredentialInvalid, "email and password are required", nil)
		}

		unlock := m.accountLocks.Lock(strings.ToLower(email))
		defer unlock()

		account, err := m.store.FindAccountByEmail(ctx, email)
		if errors.Is(err, store.ErrAccountNotFound) {
			return apperrors.Wrap(apperrors.ErrCredentialInvalid, "unknown account", nil)
		}
		if err != nil {
			return apperrors.NewStorageError("failed to look up account", err)
		}

		if !security.VerifySecret(account.Secret, credential) {
			return apperrors.Wrap(apperrors.ErrCredentialInvalid, "password mismatch", nil)
		}

		fingerprint, err := m.device.Current(ctx)
		if err != nil {
			return fmt.Errorf("failed to read device fingerprint: %w", err)
		}

		if !account.IsBound() {
			if err := m.store.UpdateAccountDeviceBinding(ctx, account.Email, fingerprint); err != nil {
				return apperrors.NewStorageError("failed to bind device", err)
			}
			m.recordDeviceBinding(ctx)
			m.logger.InfoContext(ctx, "Account bound to device",
				slog.String("email", account.Email),
				slog.String("fingerprint", maskFingerprint(fingerprint)))
		} else if !strings.EqualFold(strings.TrimSpace(account.DeviceFingerprint), fingerprint) {
			return apperrors.Wrap(apperrors.ErrDeviceMismatch, "account is registered to another device", nil).
				WithContext("email", account.Email)
		}

		session = domain.Session{
			Email:       account.Email,
			Fingerprint: fingerprint,
			IssuedAt:    m.now(),
		}
		return nil
	})
	if err != nil {
		m.logger.WarnContext(ctx, "Authentication denied",
			slog.String("email", email),
			slog.String("reason", denialReason(err)))
		return domain.Session{}, err
	}

	m.logger.InfoContext(ctx, "Authentication granted", slog.String("email", session.Email))
	return session, nil
}

// ValidateAndRotateKey accepts presentedKey for the entry and replaces the
// stored key with a fresh one before returning. Any failure leaves the stored
// key untouched and is reported as an invalid key, except store failures
// during the write.
func (m *Manager) ValidateAndRotateKey(ctx context.Context, displayName, presentedKey string) error {
	displayName = strings.TrimSpace(displayName)
	presented := strings.TrimSpace(presentedKey)

	return m.TraceKeyRotation(ctx, displayName, func(ctx context.Context) error {
		if presented == "" {
			return apperrors.Wrap(apperrors.ErrSerialKeyInvalid, "no serial key given", nil)
		}

		unlock := m.entryLocks.Lock(displayName)
		defer unlock()

		entry, err := m.findEntry(ctx, displayName)
		if err != nil {
			return err
		}

		stored := strings.TrimSpace(entry.SerialKey)
		if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
			return apperrors.Wrap(apperrors.ErrSerialKeyInvalid, "serial key mismatch", nil)
		}

		err = m.store.CompareAndSwapSerialKey(ctx, entry.DisplayName, stored, m.newKey())
		switch {
		case errors.Is(err, store.ErrKeyConflict):
			return apperrors.Wrap(apperrors.ErrSerialKeyInvalid, "serial key was used concurrently", err)
		case err != nil:
			return apperrors.NewStorageError("failed to rotate serial key", err)
		}

		m.logger.InfoContext(ctx, "Serial key consumed and rotated", slog.String("mod", entry.DisplayName))
		return nil
	})
}

// Entitlements returns the parsed entitlement list of an account. An unknown
// account has no entitlements.
func (m *Manager) Entitlements(ctx context.Context, email string) ([]string, error) {
	account, err := m.store.FindAccountByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to look up account", err)
	}
	return ParseEntitlements(account.Entitlements), nil
}

// findEntry returns the first catalog entry with the display name. A missing
// entry is reported as an invalid key.
func (m *Manager) findEntry(ctx context.Context, displayName string) (domain.CatalogEntry, error) {
	entries, err := m.store.ListCatalogEntries(ctx)
	if err != nil {
		return domain.CatalogEntry{}, apperrors.NewStorageError("failed to read catalog", err)
	}
	for _, e := range entries {
		if strings.TrimSpace(e.DisplayName) == displayName {
			return e, nil
		}
	}
	return domain.CatalogEntry{}, apperrors.Wrap(apperrors.ErrSerialKeyInvalid, "unknown mod", nil)
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrCredentialInvalid):
		return "credential_invalid"
	case errors.Is(err, apperrors.ErrDeviceMismatch):
		return "device_mismatch"
	default:
		return "error"
	}
}

func maskFingerprint(fingerprint string) string {
	if len(fingerprint) > 8 {
		return fingerprint[:8] + "..."
	}
	return fingerprint
}
