package testutil

import (
	"bytes"
	"context"
	"io"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// Fingerprint of the test device
const Fingerprint = "aa:bb:cc:dd:ee:ff"

// SeedAccounts returns accounts matching SeedCatalog: one unbound account
// entitled to two listable mods and an unlisted one, and one account bound to
// another device.
func SeedAccounts() []domain.Account {
	return []domain.Account{
		{Email: "driver@example.com", Secret: "hunter2", Entitlements: "Mod A, Mod B, Mod C"},
		{Email: "other@example.com", Secret: "hunter2", DeviceFingerprint: "11:22:33:44:55:66", Entitlements: "Mod A"},
	}
}

// SeedCatalog returns catalog entries with known serial keys. Mod B has no
// locator and is never visible.
func SeedCatalog() []domain.CatalogEntry {
	return []domain.CatalogEntry{
		{DisplayName: "Mod A", InternalName: "mod_a", Locator: "https://drive.google.com/file/d/AAA/view", SerialKey: "KEY-A"},
		{DisplayName: "Mod B", InternalName: "mod_b", Locator: "", SerialKey: "KEY-B"},
		{DisplayName: "Mod C", InternalName: "mod_c", Locator: "https://drive.google.com/open?id=CCC", SerialKey: "KEY-C"},
	}
}

// StaticFetcher serves the same payload for every content id
type StaticFetcher struct {
	Payload []byte
}

// NewStaticFetcher returns a fetcher serving size bytes
func NewStaticFetcher(size int) *StaticFetcher {
	return &StaticFetcher{Payload: bytes.Repeat([]byte{0x5a}, size)}
}

func (f *StaticFetcher) Fetch(context.Context, string) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(f.Payload)), int64(len(f.Payload)), nil
}

// GateFetcher blocks every download until Release is closed
type GateFetcher struct {
	Release chan struct{}
	Payload []byte
}

// NewGateFetcher returns a held gate serving size bytes
func NewGateFetcher(size int) *GateFetcher {
	return &GateFetcher{Release: make(chan struct{}), Payload: bytes.Repeat([]byte{0x5a}, size)}
}

func (f *GateFetcher) Fetch(ctx context.Context, _ string) (io.ReadCloser, int64, error) {
	select {
	case <-f.Release:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
	return io.NopCloser(bytes.NewReader(f.Payload)), int64(len(f.Payload)), nil
}
