// Package shared provides small concurrency helpers used across the
// installer packages.
//
// KeyedMutex serializes work per key (an account email, a catalog entry, a
// destination file) without a global lock. Go starts background workers that
// log and swallow panics instead of taking the process down.
//
// The testutil subpackage holds log capture and seed data for tests.
package shared
