// Package license authenticates accounts and consumes single-use serial keys.
//
// # Authentication
//
// An account is identified by email and checked against its stored secret.
// The first successful login binds the account to the fingerprint of the
// current device; every later login must come from the same device or it is
// refused with a device mismatch. There is no override path.
//
// The device binding is a deterrent, not a security boundary: the fingerprint
// is a MAC address that a local administrator can change.
//
// # Serial Keys
//
// Each catalog entry carries one serial key. ValidateAndRotateKey compares the
// presented key (surrounding whitespace ignored) with the stored key and, on a
// match, replaces it with a fresh random key before returning. A key is
// therefore accepted at most once.
//
// Rotation is serialized per entry inside the process and written with a
// compare-and-swap against the record store, so two installers racing on the
// same key cannot both succeed.
//
//	if err := manager.ValidateAndRotateKey(ctx, "Mod A", key); err != nil {
//	    // errors.Is(err, apperrors.ErrSerialKeyInvalid)
//	}
package license
