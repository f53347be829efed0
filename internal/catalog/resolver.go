// Package catalog computes which catalog entries an account may see.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// EntitlementSource returns the parsed entitlements of an account
type EntitlementSource interface {
	Entitlements(ctx context.Context, email string) ([]string, error)
}

// EntryLister returns the unfiltered catalog
type EntryLister interface {
	ListCatalogEntries(ctx context.Context) ([]domain.CatalogEntry, error)
}

// Resolver intersects account entitlements with the listable catalog
type Resolver struct {
	entitlements EntitlementSource
	entries      EntryLister
	logger       *slog.Logger
}

// NewResolver creates a catalog resolver
func NewResolver(entitlements EntitlementSource, entries EntryLister, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		entitlements: entitlements,
		entries:      entries,
		logger:       logger.With(slog.String("component", "catalog_resolver")),
	}
}

// VisibleMods returns the listable entries named in the account's
// entitlements, in catalog order. Entitlements without a catalog entry are
// ignored. The first row wins when a display name repeats.
func (r *Resolver) VisibleMods(ctx context.Context, email string) ([]domain.CatalogEntry, error) {
	names, err := r.entitlements.Entitlements(ctx, email)
	if err != nil {
		return nil, err
	}

	visible := []domain.CatalogEntry{}
	if len(names) == 0 {
		return visible, nil
	}

	entitled := make(map[string]struct{}, len(names))
	for _, name := range names {
		entitled[name] = struct{}{}
	}

	entries, err := r.entries.ListCatalogEntries(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read catalog", err)
	}

	seen := make(map[string]struct{})
	for _, e := range entries {
		name := strings.TrimSpace(e.DisplayName)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if !e.Listable() {
			continue
		}
		if _, ok := entitled[name]; ok {
			e.DisplayName = name
			visible = append(visible, e)
		}
	}

	r.logger.DebugContext(ctx, "Resolved visible mods",
		slog.String("email", email),
		slog.Int("entitled", len(names)),
		slog.Int("visible", len(visible)))
	return visible, nil
}

// Lookup returns the visible entry with the display name
func (r *Resolver) Lookup(ctx context.Context, email, displayName string) (domain.CatalogEntry, error) {
	visible, err := r.VisibleMods(ctx, email)
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	displayName = strings.TrimSpace(displayName)
	for _, e := range visible {
		if e.DisplayName == displayName {
			return e, nil
		}
	}
	return domain.CatalogEntry{}, apperrors.Wrap(apperrors.ErrNotFound, "mod is not available to this account", nil).
		WithContext("mod", displayName)
}

// ModViews returns the visible entries in presentation form. installed
// reports whether the artifact of an internal name is present.
func (r *Resolver) ModViews(ctx context.Context, email string, installed func(internalName string) bool) ([]domain.ModView, error) {
	visible, err := r.VisibleMods(ctx, email)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ModView, 0, len(visible))
	for _, e := range visible {
		views = append(views, e.View(installed != nil && installed(e.InternalName)))
	}
	return views, nil
}
